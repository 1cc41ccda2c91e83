// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 提供 Anthropic Claude 系列模型的 llm.ModelProviderAdapter
实现（spec §4.B）。Claude API 与 OpenAI 格式有显著差异，本包负责把
网关统一的 ModelInferenceRequest 映射到 Anthropic Messages API
（/v1/messages），并处理认证、消息格式、流式响应及工具调用的协议转换。

# 核心结构体

  - Adapter — 实现 llm.ModelProviderAdapter（Infer / InferStream / Name）

# 协议差异

  - 认证使用 x-api-key 请求头（非 Bearer Token），另加 anthropic-version
  - system 消息从 messages 数组中提取，单独传递到 system 字段
  - 消息 content 为数组形式，支持 text / tool_use / tool_result 混合
  - Tool 结果需包装为 user 角色的 tool_result 类型
  - 流式 SSE 事件结构独立（message_start / content_block_delta 等）

# 网关语义扩展

在上述协议知识之上，Adapter 额外实现了网关特有的语义：合成 respond
工具以支持 JsonModeImplicitTool（spec §4.B.3），把调用方提供的
thought 内容块折叠回普通文本（Claude 不接受合成的 extended-thinking
输入），以及通过 llm/extra_body 应用三层 extra_body/extra_headers
补丁（spec §4.B.4）。
*/
package anthropic
