// Package config loads cyclecount settings.
//
// Sources, lowest priority first:
//
//	defaults
//	YAML file (--config)
//	.env file
//	CYCLECOUNT_* environment variables
//	command-line flags
//
// Every source is reduced to key/value strings keyed by the YAML field
// names, so a value means the same thing wherever it comes from. The merged
// result is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cyclecount/internal/quantity"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CYCLECOUNT_"

// Keys accepted from every source.
const (
	KeyAPIBase     = "api_base"
	KeyDBPath      = "db_path"
	KeyDebounce    = "debounce"
	KeyStep        = "step"
	KeyHTTPTimeout = "http_timeout"
	KeyEncoding    = "encoding"
)

var keys = []string{KeyAPIBase, KeyDBPath, KeyDebounce, KeyStep, KeyHTTPTimeout, KeyEncoding}

// Config is the resolved configuration.
type Config struct {
	APIBase     string
	DBPath      string
	Debounce    time.Duration
	Step        decimal.Decimal
	HTTPTimeout time.Duration
	Encoding    string
}

// Default returns the built-in settings. APIBase has no default.
func Default() Config {
	return Config{
		DBPath:      "cyclecount.db",
		Debounce:    600 * time.Millisecond,
		Step:        quantity.StepWhole,
		HTTPTimeout: 20 * time.Second,
		Encoding:    "json",
	}
}

// Sources lists where Load reads from. Zero values skip a source.
type Sources struct {
	File   string // YAML file; must exist when set
	DotEnv string // .env file; a missing file is ignored

	// LookupEnv reads environment variables. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Flags holds command-line values keyed like the YAML fields. Only
	// flags the user actually set belong here.
	Flags map[string]string
}

// Load merges every source over the defaults and validates the result.
func Load(src Sources) (Config, error) {
	cfg := Default()

	if src.File != "" {
		values, err := readYAML(src.File)
		if err != nil {
			return Config{}, err
		}
		if err := cfg.apply(values, "file "+src.File); err != nil {
			return Config{}, err
		}
	}

	env, err := readEnv(src)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.apply(env, "environment"); err != nil {
		return Config{}, err
	}

	if err := cfg.apply(src.Flags, "flags"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	slog.Debug("config loaded",
		"api_base", cfg.APIBase,
		"db_path", cfg.DBPath,
		"debounce", cfg.Debounce,
		"step", cfg.Step.String(),
		"encoding", cfg.Encoding)
	return cfg, nil
}

// Validate checks cfg against the schema.
func (c Config) Validate() error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(cctx.Encode(map[string]any{
		"api_base":        c.APIBase,
		"db_path":         c.DBPath,
		"debounce_ms":     c.Debounce.Milliseconds(),
		"step":            c.Step.String(),
		"http_timeout_ms": c.HTTPTimeout.Milliseconds(),
		"encoding":        c.Encoding,
	}))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// apply sets each known key from values. Unknown keys are an error.
func (c *Config) apply(values map[string]string, origin string) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, key := range names {
		raw := strings.TrimSpace(values[key])
		if err := c.set(key, raw); err != nil {
			return fmt.Errorf("%s: %s: %w", origin, key, err)
		}
	}
	return nil
}

func (c *Config) set(key, raw string) error {
	switch key {
	case KeyAPIBase:
		c.APIBase = raw
	case KeyDBPath:
		c.DBPath = raw
	case KeyDebounce:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		c.Debounce = d
	case KeyStep:
		step, err := quantity.Parse(raw)
		if err != nil {
			return err
		}
		c.Step = step
	case KeyHTTPTimeout:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		c.HTTPTimeout = d
	case KeyEncoding:
		c.Encoding = strings.ToLower(raw)
	default:
		return errors.New("unknown setting")
	}
	return nil
}

// readYAML reads a flat mapping of settings. Scalars of any YAML type are
// accepted and read as text, so step: 0.5 and step: "0.5" are the same.
func readYAML(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var doc map[string]any
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	values := make(map[string]string, len(doc))
	for k, v := range doc {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("parse config %s: %s: expected a scalar", path, k)
		case nil:
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}

// readEnv merges the .env file under the process environment.
func readEnv(src Sources) (map[string]string, error) {
	lookup := src.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	dotenv := map[string]string{}
	if src.DotEnv != "" {
		m, err := godotenv.Read(src.DotEnv)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", src.DotEnv, err)
		}
	}

	values := make(map[string]string)
	for _, key := range keys {
		name := EnvPrefix + strings.ToUpper(key)
		if v, ok := lookup(name); ok {
			values[key] = v
		} else if v, ok := dotenv[name]; ok {
			values[key] = v
		}
	}
	return values, nil
}
