package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("p1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Project.ID != "p1" {
		t.Fatalf("project id not applied: %q", cfg.Project.ID)
	}
	if cfg.TaskTypes["asr"].DefaultPriority != 2 {
		t.Fatalf("unexpected asr priority: %d", cfg.TaskTypes["asr"].DefaultPriority)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing project id", func(c *Config) { c.Project.ID = "" }, "project.id"},
		{"zero contribution limit", func(c *Config) { c.Limits.MaxContributionsPerTask = 0 }, "max_contributions_per_task"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "backend"},
		{"s3 without bucket", func(c *Config) {
			c.Storage.Backend = "s3"
			c.Storage.RecordingBucket = ""
		}, "recording_bucket"},
		{"s3 without region", func(c *Config) {
			c.Storage.Backend = "s3"
			c.Storage.Region = ""
		}, "region"},
	}
	for _, c := range cases {
		cfg := Default("p1")
		c.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.wantErr) {
			t.Errorf("%s: error %q does not mention %s", c.name, err, c.wantErr)
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default("p1")
	cfg.Project.TargetLanguage = "sw"
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	got, err := FromYAML(data)
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if got.Project.TargetLanguage != "sw" {
		t.Fatalf("target language lost: %q", got.Project.TargetLanguage)
	}
	if got.Limits.MaxContributionsPerTask != cfg.Limits.MaxContributionsPerTask {
		t.Fatalf("limit lost: %d", got.Limits.MaxContributionsPerTask)
	}
}
