package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigTimelockInvariant(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timelocks.DstCancellationOffset >= cfg.Timelocks.SrcWithdrawalOffset {
		t.Fatalf("default timelocks violate dstCancellation < srcWithdrawal: dst=%d src=%d",
			cfg.Timelocks.DstCancellationOffset, cfg.Timelocks.SrcWithdrawalOffset)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.MaxActive != DefaultConfig().Session.MaxActive {
		t.Errorf("expected default MaxActive, got %d", cfg.Session.MaxActive)
	}

	path := ConfigPath(dir)
	if path != filepath.Join(dir, ConfigFileName) {
		t.Errorf("unexpected config path: %s", path)
	}

	cfg2, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("second LoadConfig: %v", err)
	}
	if cfg2.Storage.DataDir != cfg.Storage.DataDir {
		t.Errorf("round-tripped config mismatch: %+v vs %+v", cfg2.Storage, cfg.Storage)
	}
}

func TestPollIntervalDuration(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PollInterval(); got.Seconds() != 5 {
		t.Errorf("expected 5s default poll interval, got %s", got)
	}
}
