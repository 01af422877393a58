package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
default_model: gpt-4o
auto_compaction_default: true
masking:
  enabled: true
  window_turns: 5
  keep_errors: true
  keep_last_k_per_tool: 2
compaction:
  enabled: true
  threshold_pct: 80
  preserve_messages: 6
  reserved_tokens: 2000
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f.DefaultModel != "gpt-4o" {
		t.Errorf("DefaultModel = %q", f.DefaultModel)
	}
	if !f.AutoCompactionDefault {
		t.Error("AutoCompactionDefault should be true")
	}
	if f.Masking.WindowTurns != 5 || f.Masking.KeepLastKPerTool != 2 {
		t.Errorf("masking policy = %+v", f.Masking)
	}
	if f.Masking.PlaceholderTemplate == "" {
		t.Error("placeholder template default not applied")
	}
	if f.Compaction.ThresholdPct != 80 || f.Compaction.ReservedTokens != 2000 {
		t.Errorf("compaction policy = %+v", f.Compaction)
	}
}

func TestParse_invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative window", "masking:\n  window_turns: -1\n"},
		{"threshold too big", "compaction:\n  threshold_pct: 200\n"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Parse() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestProvider_SnapshotIsolation(t *testing.T) {
	p := NewProvider(Default())

	snap := p.Snapshot()
	before := snap.Masking.WindowTurns

	next := Default()
	next.Masking.WindowTurns = before + 10
	if err := p.Set(next); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if snap.Masking.WindowTurns != before {
		t.Error("snapshot taken before the swap must not change")
	}
	if p.Snapshot().Masking.WindowTurns != before+10 {
		t.Error("new snapshot must see the swapped config")
	}
}

func TestProvider_SetRejectsInvalid(t *testing.T) {
	p := NewProvider(Default())

	bad := Default()
	bad.Compaction.ThresholdPct = -1
	if err := p.Set(bad); err == nil {
		t.Fatal("Set() must reject invalid config")
	}
	if p.Snapshot().Compaction.ThresholdPct == -1 {
		t.Error("rejected config must not be installed")
	}
}

func TestProvider_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxgate.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewProviderFromFile(path)
	if err != nil {
		t.Fatalf("NewProviderFromFile() error = %v", err)
	}
	if p.Snapshot().Compaction.ThresholdPct != 80 {
		t.Fatalf("initial load wrong: %+v", p.Snapshot().Compaction)
	}

	// A broken rewrite must not displace the running config.
	if err := os.WriteFile(path, []byte("compaction:\n  threshold_pct: 999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err == nil {
		t.Error("Reload() must fail on invalid file")
	}
	if p.Snapshot().Compaction.ThresholdPct != 80 {
		t.Error("failed reload must keep the previous config")
	}
}
