package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/toolexecutor"
)

// OpenAIEngine implements the Engine contract against OpenAI chat
// completions using the SDK's streaming API.
type OpenAIEngine struct {
	client openai.Client
}

// NewOpenAIEngine creates an engine authenticated with apiKey.
func NewOpenAIEngine(apiKey string) *OpenAIEngine {
	return &OpenAIEngine{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider id this engine serves.
func (e *OpenAIEngine) Provider() string {
	return "openai"
}

// Run drives the multi-step tool loop against OpenAI, streaming deltas onto
// the bus as they arrive.
func (e *OpenAIEngine) Run(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineResult, error) {
	tools := buildOpenAITools(req.Tools)
	return runToolLoop(ctx, req, deps, func(ctx context.Context, conv []Message) (*turn, error) {
		return e.streamTurn(ctx, req, conv, tools, deps.Bus)
	})
}

func (e *OpenAIEngine) streamTurn(ctx context.Context, req EngineRequest, conv []Message, tools []openai.ChatCompletionToolParam, bus *runbus.Bus) (*turn, error) {
	messages, err := buildOpenAIMessages(req.System, conv)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := e.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				emit(bus, runbus.AgentEvent{Type: runbus.EventTextDelta, Text: delta})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if len(acc.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := acc.Choices[0]

	var toolCalls []runbus.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		toolCalls = append(toolCalls, runbus.ToolCall{ID: tc.ID, ToolName: tc.Function.Name, Args: args})
	}

	input := int(acc.Usage.PromptTokens)
	output := int(acc.Usage.CompletionTokens)
	total := int(acc.Usage.TotalTokens)

	return &turn{
		Text:         choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason, len(toolCalls)),
		Usage:        &runbus.Usage{InputTokens: &input, OutputTokens: &output, TotalTokens: &total},
	}, nil
}

func buildOpenAIMessages(system string, conv []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, msg := range conv {
		switch msg.Role {
		case "system":
			// Handled above.
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					argsJSON, err := json.Marshal(tc.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.ToolName,
							Arguments: string(argsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}
	return messages, nil
}

func buildOpenAITools(defs []toolexecutor.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return tools
}

func mapOpenAIFinishReason(reason string, toolCalls int) runbus.FinishReason {
	if toolCalls > 0 {
		return runbus.FinishToolCalls
	}
	switch reason {
	case "stop":
		return runbus.FinishStop
	case "length":
		return runbus.FinishLength
	case "tool_calls":
		return runbus.FinishToolCalls
	default:
		return runbus.FinishOther
	}
}
