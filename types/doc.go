// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared vocabulary used across the gateway's
packages: content blocks, messages, tool schemas, token usage, and the
structured error type, so none of the higher-level packages (llm, variant,
feedback, persistence) need to depend on each other just to describe a
request or response shape.

# Core types

  - Role              — the role tag (system/user/assistant/tool) of one
    turn in llm.InferenceMessage
  - ContentBlock      — one block of a message (text, thought, tool_call,
    tool_result); NewTextBlock/NewThoughtBlock/NewToolCallBlock/
    NewToolResultBlock build them
  - ToolSchema / ToolResult — a tool declaration and its execution result
  - TokenUsage        — prompt/completion/total token counts plus cost;
    llm.estimateUsage fills one in with a tiktoken-go estimate when a
    provider response omits usage
  - Error / ErrorCode — the structured error type carrying an HTTP status
    and retryable flag, shared by every package that returns an error to
    the inference façade

Inference and episode ids are threaded explicitly as uuid.UUID values
through inference.Gateway and its callees rather than carried on
context.Context; every function that needs one already has it in scope.
*/
package types
