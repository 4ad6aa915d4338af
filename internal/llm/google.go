package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider talks to Gemini models through the official SDK.
type GoogleProvider struct {
	client    *genai.Client
	model     string
	maxTokens int
	retry     RetryConfig
}

// NewGoogleProvider creates a Gemini provider.
func NewGoogleProvider(cfg Config) (*GoogleProvider, error) {
	if err := cfg.validate("google"); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google client: %w", err)
	}
	return &GoogleProvider{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, retry: cfg.Retry}, nil
}

// Close closes the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Chat implements Provider. Each call builds its own model handle so
// concurrent calls do not share system instructions or tools.
func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := p.client.GenerativeModel(p.model)
	maxTokens := int32(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.MaxOutputTokens = &maxTokens

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  geminiSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var history []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case "user":
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case "assistant":
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			history = append(history, content)
		case "tool":
			history = append(history, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     m.Name,
					Response: map[string]any{"result": m.Content},
				}},
			})
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("google request has no messages")
	}

	// The last turn is sent as the new message; the rest becomes history.
	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = history[:len(history)-1]

	resp, err := withRetry(ctx, p.retry, "google", func() (*genai.GenerateContentResponse, error) {
		return cs.SendMessage(ctx, last.Parts...)
	})
	if err != nil {
		return nil, err
	}

	out := &ChatResponse{Model: p.model}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.FinishReason != 0 {
			out.StopReason = cand.FinishReason.String()
		}
		if cand.Content != nil {
			for i, part := range cand.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					out.Content += string(v)
				case genai.FunctionCall:
					out.ToolCalls = append(out.ToolCalls, ToolCall{
						ID:   fmt.Sprintf("call_%s_%d", v.Name, i),
						Name: v.Name,
						Args: v.Args,
					})
				}
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func geminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				schema.Properties[name] = geminiProperty(m)
			}
		}
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, req...)
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func geminiProperty(prop map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	switch prop["type"] {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if items, ok := prop["items"].(map[string]any); ok {
			schema.Items = geminiProperty(items)
		}
	case "object":
		schema = geminiSchema(prop)
	}
	if desc, ok := prop["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := prop["enum"].([]string); ok {
		schema.Enum = enum
	}
	return schema
}
