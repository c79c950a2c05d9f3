package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		CORS            bool          `yaml:"cors" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       struct {
			Enabled bool    `yaml:"enabled" default:"true"`
			RPS     float64 `yaml:"rps" default:"20" validate:"gt=0"`
			Burst   int     `yaml:"burst" default:"40" validate:"gte=1"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"streamcast_logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse" validate:"oneof=kafka clickhouse both none"`
		BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		BufferSize   int           `yaml:"buffer_size" default:"2000" validate:"gte=1"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"min=1"`
		Topic        string   `yaml:"topic" default:"cpu_metric" validate:"required"`
		ResultsTopic string   `yaml:"results_topic" default:"cpu_metric_predictions"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled         bool          `yaml:"enabled" default:"true"`
			GroupID         string        `yaml:"group_id" default:"streamcast"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"earliest" validate:"oneof=earliest latest"`
			Workers         int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize      int           `yaml:"buffer_size" default:"1000"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic        string        `yaml:"dlq_topic" default:"cpu_metric_dlq"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"streamcast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"streamcast"`
	} `yaml:"redis"`
	Model struct {
		Predictor       string        `yaml:"predictor" default:"local" validate:"oneof=local http"`
		Horizons        int           `yaml:"horizons" default:"7" validate:"gte=1"`
		RingSize        int           `yaml:"ring_size"` // 0 selects horizons+1
		ErrorPolicy     string        `yaml:"error_policy" default:"per_tick" validate:"oneof=per_tick per_scored"`
		SaveFrequency   int64         `yaml:"save_frequency" default:"1000" validate:"gte=1"`
		DisableTraining bool          `yaml:"disable_training"`
		Testing         bool          `yaml:"testing"`
		URL             string        `yaml:"url"`
		Timeout         time.Duration `yaml:"timeout" default:"3s"`
		Attempts        int           `yaml:"attempts" default:"3" validate:"gte=1"`
		Alpha           float64       `yaml:"alpha" default:"0.5" validate:"gt=0,lte=1"`
		Beta            float64       `yaml:"beta" default:"0.1" validate:"gte=0,lte=1"`
		AnomalyWindow   int           `yaml:"anomaly_window" default:"100" validate:"gte=2"`
	} `yaml:"model"`
	Snapshot struct {
		Backend    string `yaml:"backend" default:"memory" validate:"oneof=memory redis sqlite"`
		Key        string `yaml:"key" default:"cpu_metric"`
		SQLitePath string `yaml:"sqlite_path" default:"streamcast.db"`
	} `yaml:"snapshot"`
	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		Source         string        `yaml:"source" default:"cpu"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse applies defaults and decodes b without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("MODEL_HORIZONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODEL_HORIZONS: %w", err)
		}
		c.Model.Horizons = n
	}
	if v := getenv("MODEL_URL"); v != "" {
		c.Model.URL = v
	}
	if v := getenv("SNAPSHOT_BACKEND"); v != "" {
		c.Snapshot.Backend = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%s failed on %q", ve[0].Namespace(), ve[0].Tag())
		}
		return err
	}
	if c.Model.RingSize != 0 && c.Model.RingSize < c.Model.Horizons+1 {
		return fmt.Errorf("model.ring_size must be at least horizons+1 (%d), got %d", c.Model.Horizons+1, c.Model.RingSize)
	}
	if c.Model.Predictor == "http" && c.Model.URL == "" {
		return fmt.Errorf("model.url is required when model.predictor is 'http'")
	}
	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when feed is enabled")
	}
	if c.UsesKafkaResults() && c.Kafka.ResultsTopic == "" {
		return fmt.Errorf("kafka.results_topic is required for backend.type '%s'", c.Backend.Type)
	}
	return nil
}

// UsesClickHouse reports whether results are persisted to ClickHouse.
func (c *Config) UsesClickHouse() bool {
	return c.Backend.Type == "clickhouse" || c.Backend.Type == "both"
}

func (c *Config) UsesKafkaResults() bool {
	return c.Backend.Type == "kafka" || c.Backend.Type == "both"
}
