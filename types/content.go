package types

import "encoding/json"

// ContentBlockType is the tag of the ContentBlock sum type.
type ContentBlockType string

const (
	ContentBlockText       ContentBlockType = "text"
	ContentBlockToolCall   ContentBlockType = "tool_call"
	ContentBlockToolResult ContentBlockType = "tool_result"
	ContentBlockThought    ContentBlockType = "thought"
)

// ContentBlock is the provider-agnostic unit of message content the
// variant engine and provider adapters exchange. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text carries ContentBlockText and ContentBlockThought payloads.
	Text string `json:"text,omitempty"`

	// ToolCall fields, set when Type == ContentBlockToolCall.
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolArgsRaw  json.RawMessage `json:"tool_arguments,omitempty"`
	RawToolCall  bool            `json:"raw_tool_call,omitempty"`

	// ToolResult fields, set when Type == ContentBlockToolResult.
	ToolResultID string `json:"tool_result_id,omitempty"`
	ToolResult   string `json:"tool_result,omitempty"`
	ToolIsError  bool   `json:"tool_is_error,omitempty"`
}

// NewTextBlock builds a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentBlockText, Text: text}
}

// NewThoughtBlock builds a thought (reasoning) content block.
func NewThoughtBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentBlockThought, Text: text}
}

// NewToolCallBlock builds a tool-call content block.
func NewToolCallBlock(id, name string, args json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentBlockToolCall, ToolCallID: id, ToolName: name, ToolArgsRaw: args}
}

// NewToolResultBlock builds a tool-result content block.
func NewToolResultBlock(toolCallID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentBlockToolResult, ToolResultID: toolCallID, ToolResult: content, ToolIsError: isError}
}

// JsonMode controls how a provider is instructed to produce JSON output.
type JsonMode string

const (
	JsonModeOff          JsonMode = "off"
	JsonModeOn           JsonMode = "on"
	JsonModeStrict       JsonMode = "strict"
	JsonModeImplicitTool JsonMode = "implicit_tool"
)

// ToolChoiceMode is the tag of the ToolChoice sum type.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice selects how the model should use the declared tools.
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode"`
	ToolName string         `json:"tool_name,omitempty"` // set when Mode == ToolChoiceSpecific
}

// FinishReason is the normalized terminal state of a provider response.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCall      FinishReason = "tool_call"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)
