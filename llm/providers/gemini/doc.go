// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 gemini 提供 Google Gemini 模型的 llm.ModelProviderAdapter 实现
（spec §4.B），直接对接 Gemini REST API，自行处理请求构建、响应解析
与流式输出。一个 Adapter 类型通过两个构造函数覆盖两条接入路径：
Google AI Studio（generativelanguage.googleapis.com，x-goog-api-key
认证）与 GCP Vertex（发布者路径 + Bearer 认证），两者的 wire 格式
（contents / generationConfig，"model" 而非 "assistant" 角色）相同，
仅 endpoint 形状与认证头不同。

# 核心结构体

  - Adapter — 实现 llm.ModelProviderAdapter（Infer / InferStream / Name）
  - wireRequest / wireContent / wireTool 等 — Gemini 原生请求/响应结构

# 构造函数

  - NewGoogleAI() — Google AI Studio 接入（spec ProviderGoogleAI）
  - NewVertex() — GCP Vertex 接入（spec ProviderVertex）

# 支持能力

  - Chat Completions（:generateContent）
  - 流式输出（:streamGenerateContent）
  - 原生 Function Calling / Tool Use
*/
package gemini
