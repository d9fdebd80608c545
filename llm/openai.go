package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
)

// OpenAIBackend streams responses from the OpenAI Chat Completion API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a new OpenAIBackend. It requires the OPENAI_API_KEY
// environment variable to be set, and supports OPENAI_BASE_URL for custom API
// endpoints.
func NewOpenAIBackend(ctx context.Context, modelName string) (*OpenAIBackend, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	return &OpenAIBackend{client: &c, model: modelName}, nil
}

// Stream opens a streaming chat completion. Context cancellation aborts the
// underlying SSE connection.
func (o *OpenAIBackend) Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenaiContent(messages),
		Tools:    convertDefsToOpenAITools(defs),
	}
	return &openaiStream{stream: o.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	acc    openai.ChatCompletionAccumulator
	done   bool
}

func (s *openaiStream) Recv() (Fragment, error) {
	if s.done {
		return Fragment{Done: true}, nil
	}
	for s.stream.Next() {
		chunk := s.stream.Current()
		s.acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return Fragment{TextDelta: chunk.Choices[0].Delta.Content}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Fragment{}, errors.Wrap(err, "openai stream failed")
	}

	s.done = true
	if len(s.acc.Choices) == 0 {
		return Fragment{Done: true}, nil
	}
	var toolCalls []session.ToolCall
	for _, tc := range s.acc.Choices[0].Message.ToolCalls {
		var toolArgs map[string]interface{}
		// Arguments are a JSON string; we expect a flat map of arguments.
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &toolArgs); err != nil {
			return Fragment{}, errors.Wrap(err, "failed to unmarshal function call arguments from OpenAI")
		}
		toolCalls = append(toolCalls, session.ToolCall{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Args:       toolArgs,
		})
	}
	return Fragment{ToolCalls: toolCalls, Done: true}, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						continue
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsBytes),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleObservation:
			// Observations with a call ID map onto the API's tool role;
			// parser-protocol observations travel as user text.
			if len(msg.ToolCalls) > 0 && msg.ToolCalls[0].ToolCallID != "" {
				chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
			} else {
				chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
			}
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case session.RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertDefsToOpenAITools converts tool definitions to the OpenAI tool format.
func convertDefsToOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, def := range defs {
		properties := make(map[string]any, len(def.Params))
		var required []string
		for name, spec := range def.Params {
			properties[name] = map[string]any{"type": spec.Type}
			if spec.Required {
				required = append(required, name)
			}
		}
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			params["required"] = required
		}

		toolParam := openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  params,
		})
		openAITools = append(openAITools, toolParam)
	}
	return openAITools
}
