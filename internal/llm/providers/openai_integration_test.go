package providers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/llm"
	_ "github.com/c360studio/insurekb/internal/llm/providers"
	"github.com/c360studio/insurekb/internal/llm/mockserver"
	"github.com/c360studio/insurekb/internal/model"
)

// TestOpenAIProvider_EndToEndAgainstMockServer exercises the real
// OpenAI-compatible request/response path: llm.Client builds a request
// through providers.OpenAIProvider, mockserver.Server answers it from a
// fixture keyed by model name, and the client parses the response back
// into an llm.Response. No live OpenAI/Anthropic/Ollama endpoint is
// involved.
func TestOpenAIProvider_EndToEndAgainstMockServer(t *testing.T) {
	srv := mockserver.New(map[string][]string{
		"claude-sonnet": {`{"entities": [{"entity_type": "insured", "raw_value": "Acme Co"}]}`},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityExtraction: {Preferred: []string{"claude-sonnet"}},
		},
		map[string]*model.EndpointConfig{
			"claude-sonnet": {Provider: "openai", URL: ts.URL + "/v1", Model: "claude-sonnet"},
		},
	)
	client := llm.NewClient(registry)

	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "extraction",
		Messages: []llm.Message{
			{Role: "system", Content: "Extract entities."},
			{Role: "user", Content: "Named Insured: Acme Co"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "Acme Co")
	assert.Equal(t, "claude-sonnet", resp.Model)
}

// TestOpenAIProvider_SequentialFixturesDriveMultiStageScenarios covers
// the extraction-then-relationship-extraction shape: two calls against
// the same model return the two fixtures in order, then repeat the
// last one.
func TestOpenAIProvider_SequentialFixturesDriveMultiStageScenarios(t *testing.T) {
	srv := mockserver.New(map[string][]string{
		"claude-sonnet": {`{"stage": 1}`, `{"stage": 2}`},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityExtraction: {Preferred: []string{"claude-sonnet"}},
		},
		map[string]*model.EndpointConfig{
			"claude-sonnet": {Provider: "openai", URL: ts.URL + "/v1", Model: "claude-sonnet"},
		},
	)
	client := llm.NewClient(registry)
	req := llm.Request{Capability: "extraction", Messages: []llm.Message{{Role: "user", Content: "go"}}}

	first, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, first.Content, `"stage": 1`)

	second, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, second.Content, `"stage": 2`)

	third, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, third.Content, `"stage": 2`)
}
