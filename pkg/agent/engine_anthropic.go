package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/toolexecutor"
)

// AnthropicEngine implements the Engine contract against Anthropic Claude
// using the SDK's streaming Messages API.
type AnthropicEngine struct {
	client anthropic.Client
}

// NewAnthropicEngine creates an engine authenticated with apiKey.
func NewAnthropicEngine(apiKey string) *AnthropicEngine {
	return &AnthropicEngine{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider id this engine serves.
func (e *AnthropicEngine) Provider() string {
	return "anthropic"
}

// Run drives the multi-step tool loop against Claude, streaming deltas onto
// the bus as they arrive.
func (e *AnthropicEngine) Run(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineResult, error) {
	tools := buildAnthropicTools(req.Tools)
	return runToolLoop(ctx, req, deps, func(ctx context.Context, conv []Message) (*turn, error) {
		return e.streamTurn(ctx, req, conv, tools, deps.Bus)
	})
}

func (e *AnthropicEngine) streamTurn(ctx context.Context, req EngineRequest, conv []Message, tools []anthropic.ToolUnionParam, bus *runbus.Bus) (*turn, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  buildAnthropicMessages(conv),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := e.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}
	var textBuf strings.Builder

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, err
		}
		if variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					textBuf.WriteString(delta.Text)
					emit(bus, runbus.AgentEvent{Type: runbus.EventTextDelta, Text: delta.Text})
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking != "" {
					emit(bus, runbus.AgentEvent{Type: runbus.EventThinkingDelta, Text: delta.Thinking})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	var toolCalls []runbus.ToolCall
	for _, block := range msg.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			var args map[string]interface{}
			if raw := tu.JSON.Input.Raw(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, fmt.Errorf("failed to parse tool input: %w", err)
				}
			}
			toolCalls = append(toolCalls, runbus.ToolCall{ID: tu.ID, ToolName: tu.Name, Args: args})
		}
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	total := input + output

	return &turn{
		Text:         textBuf.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapAnthropicStopReason(msg.StopReason, len(toolCalls)),
		Usage:        &runbus.Usage{InputTokens: &input, OutputTokens: &output, TotalTokens: &total},
	}, nil
}

func buildAnthropicMessages(conv []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(conv))
	for _, msg := range conv {
		switch msg.Role {
		case "system":
			// Handled via params.System.
		case "tool":
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.ToolName))
				}
				out = append(out, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				out = append(out, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func buildAnthropicTools(defs []toolexecutor.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		toolParam := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
			},
		}
		if required, ok := schema["required"].([]interface{}); ok {
			strSlice := make([]string, 0, len(required))
			for _, v := range required {
				if s, ok := v.(string); ok {
					strSlice = append(strSlice, s)
				}
			}
			toolParam.InputSchema.Required = strSlice
		} else if required, ok := schema["required"].([]string); ok {
			toolParam.InputSchema.Required = required
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

func mapAnthropicStopReason(reason anthropic.StopReason, toolCalls int) runbus.FinishReason {
	if toolCalls > 0 {
		return runbus.FinishToolCalls
	}
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return runbus.FinishStop
	case anthropic.StopReasonMaxTokens:
		return runbus.FinishLength
	case anthropic.StopReasonToolUse:
		return runbus.FinishToolCalls
	default:
		return runbus.FinishOther
	}
}
