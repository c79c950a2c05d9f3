package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Model.Horizons != 7 || c.Model.ErrorPolicy != "per_tick" || c.Model.SaveFrequency != 1000 {
		t.Fatalf("unexpected model defaults %+v", c.Model)
	}
	if c.Kafka.Topic != "cpu_metric" || len(c.Kafka.Brokers) != 1 || c.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("unexpected kafka defaults %+v", c.Kafka)
	}
	if c.Server.ReadTimeout != 10*time.Second || !c.Server.RateLimit.Enabled {
		t.Fatalf("unexpected server defaults %+v", c.Server)
	}
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte("server:\n  rate_limit:\n    enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.RateLimit.Enabled {
		t.Fatalf("yaml false must override default true")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad backend":       "backend:\n  type: s3\n",
		"zero horizons":     "model:\n  horizons: 0\n",
		"small ring":        "model:\n  horizons: 3\n  ring_size: 3\n",
		"http without url":  "model:\n  predictor: http\n",
		"feed without url":  "feed:\n  enabled: true\n",
		"bad error policy":  "model:\n  error_policy: median\n",
		"bad snapshot kind": "snapshot:\n  backend: s3\n",
	}
	for name, doc := range cases {
		c, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestRingSizeAtBoundaryIsValid(t *testing.T) {
	c, _ := Parse([]byte("model:\n  horizons: 3\n  ring_size: 4\n"))
	if err := c.Validate(); err != nil {
		t.Fatalf("ring of horizons+1 should be valid: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, _ := Parse(nil)
	env := map[string]string{
		"BACKEND":          "kafka",
		"KAFKA_BROKERS":    "a:9092,b:9092",
		"MODEL_HORIZONS":   "3",
		"SNAPSHOT_BACKEND": "redis",
		"LOG_LEVEL":        "debug",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Backend.Type != "kafka" || strings.Join(c.Kafka.Brokers, ",") != "a:9092,b:9092" {
		t.Fatalf("env not applied: %+v", c.Kafka.Brokers)
	}
	if c.Model.Horizons != 3 || c.Snapshot.Backend != "redis" || c.Logger.Level != "debug" {
		t.Fatalf("env not applied: %+v", c.Model)
	}

	bad := func(k string) string {
		if k == "MODEL_HORIZONS" {
			return "seven"
		}
		return ""
	}
	if err := c.applyEnv(bad); err == nil {
		t.Fatalf("expected error for non-numeric MODEL_HORIZONS")
	}
}

func TestLoadSampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !c.UsesClickHouse() || !c.UsesKafkaResults() {
		t.Fatalf("sample config should route to both backends, got %q", c.Backend.Type)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected read error")
	}
	_ = os.WriteFile(path, []byte("model: ["), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
