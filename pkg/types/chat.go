package types //nolint:revive // package name is intentional

import (
	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleControl   = "control"
)

// ChatRequest is the body of POST /ml/v1/text/chat and its streaming
// variant.
type ChatRequest struct {
	ModelID          string          `json:"model_id,omitempty"`
	Messages         []ChatMessage   `json:"messages"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoiceOption string          `json:"tool_choice_option,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	Logprobs         bool            `json:"logprobs,omitempty"`
	TopLogprobs      int             `json:"top_logprobs,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	N                int             `json:"n,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TimeLimit        int             `json:"time_limit,omitempty"`
	Scope

	// Extra holds provider-specific parameters that are passed through unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

var chatRequestKnownFields = map[string]struct{}{
	"model_id":           {},
	"messages":           {},
	"tools":              {},
	"tool_choice_option": {},
	"tool_choice":        {},
	"frequency_penalty":  {},
	"logprobs":           {},
	"top_logprobs":       {},
	"max_tokens":         {},
	"n":                  {},
	"presence_penalty":   {},
	"response_format":    {},
	"seed":               {},
	"stop":               {},
	"temperature":        {},
	"top_p":              {},
	"time_limit":         {},
	"project_id":         {},
	"space_id":           {},
}

// MarshalJSON merges Extra fields without overriding explicitly set fields.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type Alias ChatRequest
	return mergeExtra(Alias(r), r.Extra)
}

// UnmarshalJSON captures unknown fields into Extra for passthrough.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type Alias ChatRequest
	var parsed Alias
	extra, err := splitExtra(data, &parsed, chatRequestKnownFields)
	if err != nil {
		return err
	}
	*r = ChatRequest(parsed)
	r.Extra = extra
	return nil
}

// Validate checks a foundation-model chat request.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	return r.ValidateDeployment()
}

// ValidateDeployment checks a chat request aimed at a deployment.
func (r *ChatRequest) ValidateDeployment() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if len(r.Messages) == 0 {
		return llmerrors.ErrMissingMessages
	}
	return nil
}

// ChatMessage is a single message in the conversation. Content is either a
// JSON string or an array of content parts.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// TextMessage builds a message whose content is plain text.
func TextMessage(role, text string) ChatMessage {
	content, _ := json.Marshal(text)
	return ChatMessage{Role: role, Content: content}
}

// Text returns the content as a string when it is a JSON string, or the
// concatenated text parts when it is an array.
func (m ChatMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var out string
	for _, p := range parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// ContentPart is one element of an array-valued message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool represents a function that the model can call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	Index    int              `json:"index,omitempty"`
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction contains the function name and arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the output format for the model.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatResponse is the body of a non-streaming chat response.
type ChatResponse struct {
	ID        string         `json:"id"`
	ModelID   string         `json:"model_id"`
	Model     string         `json:"model,omitempty"`
	Choices   []ChatChoice   `json:"choices"`
	Created   int64          `json:"created"`
	CreatedAt string         `json:"created_at,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	System    *SystemDetails `json:"system,omitempty"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Usage reports token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamResponse is the payload of one chat stream event.
type ChatStreamResponse struct {
	ID        string             `json:"id"`
	ModelID   string             `json:"model_id"`
	Model     string             `json:"model,omitempty"`
	Choices   []ChatStreamChoice `json:"choices"`
	Created   int64              `json:"created"`
	CreatedAt string             `json:"created_at,omitempty"`
	Usage     *Usage             `json:"usage,omitempty"`
	System    *SystemDetails     `json:"system,omitempty"`
}

// Delta returns the content delta of the first choice.
func (r *ChatStreamResponse) Delta() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Delta.Content
}

// ChatStreamChoice is one choice of a stream event.
type ChatStreamChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// ChatDelta is the incremental part of a streamed message.
type ChatDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
