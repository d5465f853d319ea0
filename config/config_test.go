package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalYAML = `optionflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  processed_buffer: 1
processor:
  max_workers: 1
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Optionflow.Name != "TestApp" {
		t.Fatalf("unexpected name %q", cfg.Optionflow.Name)
	}
	if cfg.Source.Delta.BaseURL != defaultBaseURL {
		t.Fatalf("base url default not applied: %q", cfg.Source.Delta.BaseURL)
	}
	if cfg.Processor.PricingMode != "mid" {
		t.Fatalf("pricing mode default not applied: %q", cfg.Processor.PricingMode)
	}
	if len(cfg.Source.Delta.Underlyings) != 1 || cfg.Source.Delta.Underlyings[0] != "BTC" {
		t.Fatalf("underlyings default not applied: %v", cfg.Source.Delta.Underlyings)
	}
	if cfg.Reader.Interval != 30*time.Second {
		t.Fatalf("reader interval default not applied: %v", cfg.Reader.Interval)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	path := writeTempConfig(t, `optionflow:
  version: "1.0"
channels:
  raw_buffer: 1
  processed_buffer: 1
processor:
  max_workers: 1
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadConfigBadPricingMode(t *testing.T) {
	path := writeTempConfig(t, `optionflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  processed_buffer: 1
processor:
  max_workers: 1
  pricing_mode: vwap
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for unknown pricing mode")
	}
}

func TestLoadConfigS3Validation(t *testing.T) {
	path := writeTempConfig(t, `optionflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  processed_buffer: 1
processor:
  max_workers: 1
storage:
  s3:
    enabled: true
    region: us-east-1
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing bucket")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	valid := []string{"my-bucket", "chain.archive.prod", "abc"}
	invalid := []string{"ab", "-bad", "bad-", "double..dot", ".leading"}
	for _, name := range valid {
		if !isValidS3Bucket(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidS3Bucket(name) {
			t.Errorf("%q should be invalid", name)
		}
	}
}
