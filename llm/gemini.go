package llm

import (
	"context"
	"os"

	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiBackend streams responses from the Google Gemini API.
type GeminiBackend struct {
	model *genai.GenerativeModel
}

// NewGeminiBackend creates a new GeminiBackend.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiBackend(ctx context.Context, modelName string) (*GeminiBackend, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &GeminiBackend{
		model: client.GenerativeModel(modelName),
	}, nil
}

// Stream opens a streaming generation request. The last message is the new
// prompt; everything before it becomes chat history.
func (g *GeminiBackend) Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error) {
	history := convertMessagesToGeminiContent(messages)
	if len(history) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}
	g.model.Tools = convertDefsToGeminiTools(defs)

	lastMessage := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]

	return &geminiStream{iter: chatSession.SendMessageStream(ctx, lastMessage.Parts...)}, nil
}

type geminiStream struct {
	iter      *genai.GenerateContentResponseIterator
	toolCalls []session.ToolCall
	done      bool
}

func (s *geminiStream) Recv() (Fragment, error) {
	if s.done {
		return Fragment{Done: true}, nil
	}
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			s.done = true
			return Fragment{ToolCalls: s.toolCalls, Done: true}, nil
		}
		if err != nil {
			return Fragment{}, errors.Wrap(err, "gemini stream failed")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		text := ""
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text += string(v)
			case genai.FunctionCall:
				// Function calls are collected and delivered batched on the
				// terminal fragment, like the other structured backends.
				s.toolCalls = append(s.toolCalls, session.ToolCall{
					Name: v.Name,
					Args: v.Args,
				})
			}
		}
		if text != "" {
			return Fragment{TextDelta: text}, nil
		}
	}
}

func (s *geminiStream) Close() error { return nil }

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
// Gemini has no dedicated observation role, so observations travel as user text.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// convertDefsToGeminiTools converts tool definitions to Gemini's
// FunctionDeclaration format.
func convertDefsToGeminiTools(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, def := range defs {
		properties := make(map[string]*genai.Schema, len(def.Params))
		var required []string
		for name, spec := range def.Params {
			properties[name] = &genai.Schema{Type: geminiType(spec.Type)}
			if spec.Required {
				required = append(required, name)
			}
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
