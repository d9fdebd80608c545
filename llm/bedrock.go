package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

// BedrockBackend serves Anthropic models on AWS Bedrock.
//
// Bedrock's InvokeModel API returns the complete response in one shot, so this
// backend synthesizes the fragment stream from the finished body. Cancellation
// therefore degrades: once the request is in flight, requesting cancellation
// discards further output but cannot stop the remote computation beyond
// aborting the HTTP request via the context.
type BedrockBackend struct {
	client   *bedrockruntime.Client
	modelID  string
	region   string
	endpoint string
}

// NewBedrockBackend creates a new BedrockBackend.
// It requires AWS credentials to be configured in the environment.
func NewBedrockBackend(ctx context.Context, modelID string) (*BedrockBackend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := bedrockruntime.NewFromConfig(cfg)

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	// Custom endpoint is useful for testing.
	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")

	return &BedrockBackend{
		client:   client,
		modelID:  modelID,
		region:   region,
		endpoint: endpoint,
	}, nil
}

// Stream invokes the model and replays the complete response as fragments.
func (b *BedrockBackend) Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error) {
	bedrockMessages, systemPrompt := convertMessagesToBedrockFormat(messages)

	requestBody, err := createBedrockRequest(bedrockMessages, systemPrompt, defs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to invoke Bedrock model")
	}

	text, toolCalls, err := processBedrockResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	var fragments []Fragment
	if text != "" {
		fragments = append(fragments, Fragment{TextDelta: text})
	}
	fragments = append(fragments, Fragment{ToolCalls: toolCalls, Done: true})
	return &scriptedStream{ctx: ctx, fragments: fragments}, nil
}

// convertMessagesToBedrockFormat converts our internal message format to the
// Anthropic-on-Bedrock request format.
func convertMessagesToBedrockFormat(messages []session.Message) ([]map[string]interface{}, string) {
	var bedrockMessages []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": msg.Content,
					},
				},
			})
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var toolUses []map[string]interface{}
				for _, tc := range msg.ToolCalls {
					toolUses = append(toolUses, map[string]interface{}{
						"type":  "tool_use",
						"id":    tc.ToolCallID,
						"name":  tc.Name,
						"input": tc.Args,
					})
				}
				bedrockMessages = append(bedrockMessages, map[string]interface{}{
					"role":    "assistant",
					"content": toolUses,
				})
			} else if msg.Content != "" {
				bedrockMessages = append(bedrockMessages, map[string]interface{}{
					"role": "assistant",
					"content": []map[string]interface{}{
						{
							"type": "text",
							"text": msg.Content,
						},
					},
				})
			}
		case session.RoleObservation:
			if len(msg.ToolCalls) > 0 && msg.ToolCalls[0].ToolCallID != "" {
				bedrockMessages = append(bedrockMessages, map[string]interface{}{
					"role": "user",
					"content": []map[string]interface{}{
						{
							"type":        "tool_result",
							"tool_use_id": msg.ToolCalls[0].ToolCallID,
							"content":     msg.Content,
						},
					},
				})
			} else {
				bedrockMessages = append(bedrockMessages, map[string]interface{}{
					"role": "user",
					"content": []map[string]interface{}{
						{
							"type": "text",
							"text": msg.Content,
						},
					},
				})
			}
		case session.RoleSystem:
			systemPrompt = msg.Content
		}
	}

	return bedrockMessages, systemPrompt
}

// createBedrockRequest creates the request body for Anthropic models on Bedrock.
func createBedrockRequest(messages []map[string]interface{}, systemPrompt string, defs []tools.Definition) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	if len(defs) > 0 {
		var toolSchemas []map[string]interface{}
		for _, def := range defs {
			properties := make(map[string]interface{}, len(def.Params))
			var required []string
			for name, spec := range def.Params {
				properties[name] = map[string]interface{}{"type": spec.Type}
				if spec.Required {
					required = append(required, name)
				}
			}
			inputSchema := map[string]interface{}{
				"type":       "object",
				"properties": properties,
			}
			if len(required) > 0 {
				inputSchema["required"] = required
			}
			toolSchemas = append(toolSchemas, map[string]interface{}{
				"name":         def.Name,
				"description":  def.Description,
				"input_schema": inputSchema,
			})
		}
		request["tools"] = toolSchemas
	}

	return json.Marshal(request)
}

// processBedrockResponse extracts the text and tool calls from a Bedrock
// response body.
func processBedrockResponse(body []byte) (string, []session.ToolCall, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", nil, errors.Wrap(err, "failed to unmarshal Bedrock response")
	}

	if errMsg, ok := response["error"]; ok {
		return "", nil, errors.New("Bedrock API error: %v", errMsg)
	}

	content, ok := response["content"]
	if !ok {
		return "", nil, nil
	}
	contentArray, ok := content.([]interface{})
	if !ok {
		return "", nil, errors.New("unexpected content format in Bedrock response")
	}

	var responseContent string
	var toolCalls []session.ToolCall
	toolCallIDCounter := 0

	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		itemType, ok := itemMap["type"].(string)
		if !ok {
			continue
		}

		switch itemType {
		case "text":
			if text, ok := itemMap["text"].(string); ok {
				responseContent += text
			}
		case "tool_use":
			if name, ok := itemMap["name"].(string); ok {
				if input, ok := itemMap["input"].(map[string]interface{}); ok {
					id := fmt.Sprintf("call_%d_%s", toolCallIDCounter, name)
					if toolID, ok := itemMap["id"].(string); ok {
						id = toolID
					}
					toolCalls = append(toolCalls, session.ToolCall{
						ToolCallID: id,
						Name:       name,
						Args:       input,
					})
					toolCallIDCounter++
				}
			}
		}
	}

	return responseContent, toolCalls, nil
}
