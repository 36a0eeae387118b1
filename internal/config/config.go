// Package config loads recstore settings from YAML files.
//
// A file is checked against the embedded CUE definition #Config before it is
// decoded, so unknown keys and out-of-range values are rejected with the
// offending path.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Notifier modes.
const (
	NotifierOff      = "off"
	NotifierStandard = "standard"
	NotifierLogging  = "logging"
	NotifierDebug    = "debug"
)

// Authorizer modes.
const (
	AuthorizerAllow         = "allow"
	AuthorizerTruncateGuard = "truncate-guard"
)

// Config is the top-level configuration file.
type Config struct {
	Database     Database `yaml:"database"`
	Strict       bool     `yaml:"strict"`
	AutoSnapshot bool     `yaml:"auto_snapshot"`
	Notifier     string   `yaml:"notifier"`
	Authorizer   string   `yaml:"authorizer"`
	Relay        *Relay   `yaml:"relay"`
}

// Database holds the file path and connection pragmas.
type Database struct {
	Path        string        `yaml:"path"`
	JournalMode string        `yaml:"journal_mode"`
	Synchronous string        `yaml:"synchronous"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	ForeignKeys *bool         `yaml:"foreign_keys"`
	Pragmas     []string      `yaml:"pragmas"`
}

// Relay configures change event forwarding.
type Relay struct {
	Buffer int     `yaml:"buffer"`
	Rate   float64 `yaml:"rate"`
	Burst  int     `yaml:"burst"`
	Log    bool    `yaml:"log"`
	Redis  *Redis  `yaml:"redis"`
	Kafka  *Kafka  `yaml:"kafka"`
}

// Redis is a Redis pub/sub sink.
type Redis struct {
	Addr        string        `yaml:"addr"`
	Channel     string        `yaml:"channel"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Kafka is a Kafka topic sink.
type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
}

// ValidationError reports a file that does not match #Config.
type ValidationError struct {
	Source  string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Source, e.Details)
}

// Default returns the configuration used for a bare database path.
func Default(path string) *Config {
	return &Config{
		Database:   Database{Path: path},
		Notifier:   NotifierStandard,
		Authorizer: AuthorizerAllow,
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(path, data)
}

// Parse validates and decodes YAML data.
func Parse(data []byte) (*Config, error) {
	return parse("<input>", data)
}

func parse(source string, data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", source, err)
	}
	if err := validate(source, raw); err != nil {
		return nil, err
	}

	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", source, err)
	}
	return cfg, nil
}

func validate(source string, raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Source: source, Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
