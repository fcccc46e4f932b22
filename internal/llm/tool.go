package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool is a function the model may call during a chat turn.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() json.RawMessage
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// InputSchema is the schema of tools taking a single free-text argument.
var InputSchema = json.RawMessage(`{"type":"object","properties":{"input":{"type":"string","description":"Tool input as plain text or JSON."}},"required":["input"]}`)

// TextTool adapts a single-string function to Tool. The model passes
// {"input": "..."}; a bare JSON string or raw text is accepted too.
type TextTool struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, input string) (string, error)
}

// Name implements Tool.
func (t TextTool) Name() string { return t.ToolName }

// Description implements Tool.
func (t TextTool) Description() string { return t.Desc }

// Parameters implements Tool.
func (t TextTool) Parameters() json.RawMessage { return InputSchema }

// Call implements Tool.
func (t TextTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	return t.Fn(ctx, TextInput(args))
}

// TextInput extracts the free-text argument from raw tool arguments.
func TextInput(args json.RawMessage) string {
	raw := strings.TrimSpace(string(args))
	if raw == "" {
		return ""
	}

	var obj struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(args, &obj); err == nil && len(obj.Input) > 0 {
		var s string
		if err := json.Unmarshal(obj.Input, &s); err == nil {
			return s
		}
		// Structured input (e.g. a transaction object) is passed on as JSON
		return string(obj.Input)
	}

	var s string
	if err := json.Unmarshal(args, &s); err == nil {
		return s
	}
	return raw
}

// Specs converts tools to their wire descriptions.
func Specs(tools []Tool) []ToolSpec {
	specs := make([]ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = ToolSpec{
			Type: "function",
			Function: FunctionSpec{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}
	return specs
}
