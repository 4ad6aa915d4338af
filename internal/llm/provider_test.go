package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInferProviderFromModel(t *testing.T) {
	tests := map[string]string{
		"claude-sonnet-4":  "anthropic",
		"gpt-4o":           "openai",
		"GPT-4o-mini":      "openai",
		"o3-mini":          "openai",
		"gemini-1.5-pro":   "google",
		"llama-3-70b":      "",
		"some-local-model": "",
	}
	for model, want := range tests {
		if got := InferProviderFromModel(model); got != want {
			t.Errorf("InferProviderFromModel(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestNewProviderValidation(t *testing.T) {
	if _, err := NewProvider(Config{Model: "mystery"}); err == nil {
		t.Error("expected error for unknown model")
	}
	if _, err := NewProvider(Config{Provider: "cohere", Model: "x"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	_, err := NewProvider(Config{Model: "gpt-4o", MaxTokens: 100})
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("got %v, want api_key error", err)
	}
	p, err := NewProvider(Config{Model: "gpt-4o", APIKey: "sk-test", MaxTokens: 100})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("got %T, want *OpenAIProvider", p)
	}
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	got, err := withRetry(context.Background(), cfg, "test", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestWithRetryStopsOnPermanentErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	_, err := withRetry(context.Background(), cfg, "test", func() (string, error) {
		calls++
		return "", errors.New("400 invalid request")
	})
	if err == nil || calls != 1 {
		t.Errorf("got err=%v after %d calls, want error after 1", err, calls)
	}

	calls = 0
	_, err = withRetry(context.Background(), cfg, "test", func() (string, error) {
		calls++
		return "", errors.New("402 payment required")
	})
	if err == nil || !strings.Contains(err.Error(), "billing") || calls != 1 {
		t.Errorf("got err=%v after %d calls, want billing error after 1", err, calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	calls := 0
	_, err := withRetry(context.Background(), cfg, "test", func() (int, error) {
		calls++
		return 0, errors.New("429 too many requests")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestMockProviderScript(t *testing.T) {
	p := NewMockProvider(&ChatResponse{Content: "first"}, &ChatResponse{Content: "second"})
	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		resp, err := p.Chat(ctx, ChatRequest{})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Content != want {
			t.Errorf("got %q, want %q", resp.Content, want)
		}
	}
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Error("expected error once script is exhausted")
	}
	if p.CallCount() != 3 {
		t.Errorf("got %d calls, want 3", p.CallCount())
	}
}
