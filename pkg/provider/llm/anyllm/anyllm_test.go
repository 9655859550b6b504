package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// TestNew_RequiresProviderName checks that an empty provider name is rejected.
func TestNew_RequiresProviderName(t *testing.T) {
	if _, err := New("", "some-model"); err == nil {
		t.Fatal("expected error for empty providerName, got nil")
	}
}

// TestNew_RequiresModel checks that an empty model is rejected.
func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("gemini", ""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// TestNew_UnsupportedProvider checks that unknown backend names fail.
func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("carrierpigeon", "some-model"); err == nil {
		t.Fatal("expected error for unsupported provider, got nil")
	}
}

// TestBuildParams_SystemPromptFirst checks that the system prompt is prepended
// as a RoleSystem message.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []types.Message{{Role: "user", Content: "hi"}},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want %q", params.Messages[0].Role, anyllmlib.RoleSystem)
	}
	if params.Messages[0].Content != "Be brief." {
		t.Errorf("first message content = %q", params.Messages[0].Content)
	}
	if params.Messages[1].Role != "user" || params.Messages[1].Content != "hi" {
		t.Errorf("second message = %+v", params.Messages[1])
	}
}

// TestBuildParams_Model checks that the configured model lands in the params.
func TestBuildParams_Model(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{})
	if params.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q, want %q", params.Model, "gemini-2.0-flash")
	}
}

// TestBuildParams_TemperatureAndMaxTokens checks that the optional knobs are
// pointers only when set.
func TestBuildParams_TemperatureAndMaxTokens(t *testing.T) {
	p := &Provider{model: "m"}

	params := p.buildParams(llm.CompletionRequest{})
	if params.Temperature != nil {
		t.Error("expected nil Temperature for the zero value")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil MaxTokens for the zero value")
	}

	params = p.buildParams(llm.CompletionRequest{Temperature: 0.9, MaxTokens: 128})
	if params.Temperature == nil || *params.Temperature != 0.9 {
		t.Errorf("Temperature = %v, want 0.9", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("MaxTokens = %v, want 128", params.MaxTokens)
	}
}
