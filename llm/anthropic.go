package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

// AnthropicBackend streams responses from the Anthropic API. Tool calls are
// delivered batched: text deltas arrive as they are generated and the
// accumulated tool_use blocks are attached to the terminal fragment.
type AnthropicBackend struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicBackend creates a new AnthropicBackend.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicBackend(ctx context.Context, modelName string) (*AnthropicBackend, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicBackend{
		client: &client,
		model:  modelName,
	}, nil
}

// Stream opens a streaming message request. Context cancellation aborts the
// underlying SSE connection.
func (a *AnthropicBackend) Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	for _, def := range defs {
		toolParam := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: convertParamsToAnthropicSchema(def.Params),
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	return &anthropicStream{stream: a.client.Messages.NewStreaming(ctx, params)}, nil
}

type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	message anthropic.Message
	done    bool
}

func (s *anthropicStream) Recv() (Fragment, error) {
	if s.done {
		return Fragment{Done: true}, nil
	}
	for s.stream.Next() {
		event := s.stream.Current()
		if err := s.message.Accumulate(event); err != nil {
			return Fragment{}, errors.Wrap(err, "failed to accumulate stream event")
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				return Fragment{TextDelta: text.Text}, nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return Fragment{}, errors.Wrap(err, "anthropic stream failed")
	}

	toolCalls, err := anthropicToolCalls(&s.message)
	if err != nil {
		return Fragment{}, err
	}
	s.done = true
	return Fragment{ToolCalls: toolCalls, Done: true}, nil
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

// anthropicToolCalls extracts the tool_use blocks from an accumulated message.
func anthropicToolCalls(msg *anthropic.Message) ([]session.ToolCall, error) {
	var toolCalls []session.ToolCall
	for _, content := range msg.Content {
		if c, ok := content.AsAny().(anthropic.ToolUseBlock); ok {
			var args map[string]interface{}
			if err := json.Unmarshal(c.Input, &args); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal tool call input")
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: c.ID,
				Name:       c.Name,
				Args:       args,
			})
		}
	}
	return toolCalls, nil
}

// convertMessagesToAnthropicMessages converts our internal message format to
// Anthropic's format. Observation messages become tool_result blocks when they
// carry a tool call ID, and plain user text otherwise.
func convertMessagesToAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var contentItems []anthropic.ContentBlockParamUnion
				if msg.Content != "" {
					contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					})
				}
				for _, tc := range msg.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						continue
					}
					contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							Type:  "tool_use",
							ID:    tc.ToolCallID,
							Name:  tc.Name,
							Input: argsBytes,
						}})
				}
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: contentItems,
				})
			} else if msg.Content != "" {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{{
						OfText: &anthropic.TextBlockParam{
							Text: msg.Content,
						},
					}},
				})
			}
		case session.RoleObservation:
			if len(msg.ToolCalls) > 0 && msg.ToolCalls[0].ToolCallID != "" {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleUser,
					Content: []anthropic.ContentBlockParamUnion{{
						OfToolResult: &anthropic.ToolResultBlockParam{
							ToolUseID: msg.ToolCalls[0].ToolCallID,
							Content: []anthropic.ToolResultBlockParamContentUnion{{
								OfText: &anthropic.TextBlockParam{
									Text: msg.Content,
								},
							}},
						},
					},
					}})
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case session.RoleSystem:
			// The last system message wins as the system prompt.
			systemPrompt = msg.Content
		}
	}

	return anthropicMessages, systemPrompt
}

// convertParamsToAnthropicSchema builds a JSON schema from a parameter spec map.
func convertParamsToAnthropicSchema(params map[string]tools.ParamSpec) anthropic.ToolInputSchemaParam {
	properties := make(map[string]interface{}, len(params))
	var required []string
	for name, spec := range params {
		properties[name] = map[string]interface{}{"type": spec.Type}
		if spec.Required {
			required = append(required, name)
		}
	}
	schema := anthropic.ToolInputSchemaParam{Properties: properties}
	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}
