package registry

import "testing"

func TestRegistry_Lookup(t *testing.T) {
	r := Default()

	tests := []struct {
		name         string
		model        string
		wantContext  int
		wantEncoding string
	}{
		{"claude versioned", "claude-sonnet-4-20250514", 200000, ""},
		{"gpt-4o dated", "gpt-4o-2024-08-06", 128000, "o200k_base"},
		{"gpt-4o beats gpt-4 prefix", "gpt-4o-mini", 128000, "o200k_base"},
		{"plain gpt-4", "gpt-4-0613", 8192, "cl100k_base"},
		{"gpt-4-turbo beats gpt-4", "gpt-4-turbo-preview", 128000, "cl100k_base"},
		{"unknown model", "some-new-model", DefaultMaxContext, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := r.Lookup(tt.model)
			if m.MaxContext != tt.wantContext {
				t.Errorf("MaxContext = %d, want %d", m.MaxContext, tt.wantContext)
			}
			if m.Encoding != tt.wantEncoding {
				t.Errorf("Encoding = %q, want %q", m.Encoding, tt.wantEncoding)
			}
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	r := Default()
	r.Register("in-house", Model{MaxContext: 32000, Encoding: "cl100k_base"})

	if got := r.MaxContext("in-house-v2"); got != 32000 {
		t.Errorf("MaxContext = %d, want 32000", got)
	}
	if got := r.Encoding("in-house-v2"); got != "cl100k_base" {
		t.Errorf("Encoding = %q, want cl100k_base", got)
	}
}

func TestRegistry_Known(t *testing.T) {
	r := Default()
	known := r.Known()
	if len(known) == 0 {
		t.Fatal("default registry must not be empty")
	}
	for i := 1; i < len(known); i++ {
		if known[i-1] >= known[i] {
			t.Errorf("Known() not sorted at %d: %s >= %s", i, known[i-1], known[i])
		}
	}
}
