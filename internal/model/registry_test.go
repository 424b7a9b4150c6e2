package model

import "testing"

func TestNewDefaultRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	if got := r.Resolve(CapabilityExtraction); got != "claude-sonnet" {
		t.Errorf("expected claude-sonnet for extraction, got %s", got)
	}
	if got := r.Resolve(CapabilityFast); got != "claude-haiku" {
		t.Errorf("expected claude-haiku for fast, got %s", got)
	}
}

func TestGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityExtraction)
	want := []string{"claude-sonnet", "claude-haiku"}
	if len(chain) != len(want) {
		t.Fatalf("expected chain length %d, got %d", len(want), len(chain))
	}
	for i, name := range want {
		if chain[i] != name {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i], name)
		}
	}
}

func TestGetEndpoint(t *testing.T) {
	r := NewDefaultRegistry()

	ep := r.GetEndpoint("claude-sonnet")
	if ep == nil {
		t.Fatal("expected endpoint for claude-sonnet")
	}
	if ep.Provider != "anthropic" {
		t.Errorf("expected anthropic provider, got %s", ep.Provider)
	}

	if r.GetEndpoint("nonexistent") != nil {
		t.Error("expected nil endpoint for unconfigured model")
	}
}

func TestSetCapabilityAndEndpoint(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.SetEndpoint("local-llama", &EndpointConfig{Provider: "ollama", URL: "http://localhost:11434", Model: "llama3"})
	r.SetCapability(CapabilityFast, &CapabilityConfig{Preferred: []string{"local-llama"}})

	if got := r.Resolve(CapabilityFast); got != "local-llama" {
		t.Errorf("expected local-llama, got %s", got)
	}
	if ep := r.GetEndpoint("local-llama"); ep == nil || ep.Provider != "ollama" {
		t.Error("expected local-llama endpoint to be registered")
	}
}

func TestResolveUnknownCapabilityFallsBackToDefault(t *testing.T) {
	r := NewDefaultRegistry()
	if got := r.Resolve(Capability("unknown")); got != "claude-sonnet" {
		t.Errorf("expected default model claude-sonnet, got %s", got)
	}
}

func TestListCapabilities(t *testing.T) {
	r := NewDefaultRegistry()
	caps := r.ListCapabilities()
	if len(caps) != 4 {
		t.Errorf("expected 4 capabilities, got %d", len(caps))
	}
}

func TestHealthCircuitBreaker(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Fatal("expected endpoint to be available before any failures")
	}

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	if r.IsEndpointAvailable("claude-sonnet") {
		t.Error("expected circuit to be open after threshold failures")
	}

	r.MarkEndpointSuccess("claude-sonnet")
	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Error("expected circuit to close after a success")
	}
}

func TestGetAvailableFallbackChainSkipsBrokenEndpoints(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	chain := r.GetAvailableFallbackChain(CapabilityExtraction)
	for _, name := range chain {
		if name == "claude-sonnet" {
			t.Error("expected claude-sonnet to be filtered out of the available chain")
		}
	}
	if len(chain) != 1 || chain[0] != "claude-haiku" {
		t.Errorf("expected only claude-haiku in chain, got %v", chain)
	}
}

func TestGetAvailableFallbackChainReturnsFullChainWhenAllBroken(t *testing.T) {
	r := NewDefaultRegistry()

	for _, name := range r.GetFallbackChain(CapabilityExtraction) {
		for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
			r.MarkEndpointFailure(name)
		}
	}

	chain := r.GetAvailableFallbackChain(CapabilityExtraction)
	if len(chain) != 2 {
		t.Errorf("expected full chain returned when all endpoints broken, got %v", chain)
	}
}
