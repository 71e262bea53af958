package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"gopkg.in/yaml.v3"
)

// Messenger kinds. Config.Messenger lists one or more of them separated by commas.
const (
	MessengerConsole = "console"
	MessengerLog     = "log"
	MessengerNone    = "none"
)

// DefaultFile is read by Load when no path is given and it exists.
const DefaultFile = "conductor.yaml"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the runtime configuration of the conductor binary and facade.
type Config struct {
	WorkflowsDir string         `yaml:"workflows_dir"`
	ToolsFile    string         `yaml:"tools_file"`
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	Store        StoreConfig    `yaml:"store"`
	Security     SecurityConfig `yaml:"security"`
	HTTP         HTTPConfig     `yaml:"http"`
	Messenger    string         `yaml:"messenger"`
}

// StoreConfig selects and configures the task and log stores.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// Dir holds one JSON file per task (file backend).
	Dir string `yaml:"dir"`
	// LogPath is the JSONL invocation log (file backend).
	LogPath string `yaml:"log_path"`

	Redis RedisConfig `yaml:"redis"`

	// DistributedLock guards event delivery with a Redis lock (redis backend only).
	DistributedLock bool          `yaml:"distributed_lock"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// SecurityConfig configures the persistence middleware.
type SecurityConfig struct {
	// EncryptionKey is a hex-encoded 32 byte AES key. Empty disables encryption.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys are older hex keys still accepted for decryption.
	FallbackKeys []string `yaml:"fallback_keys"`
	// PIIKeys are state data keys masked before save.
	PIIKeys []string `yaml:"pii_keys"`
}

// HTTPConfig configures `conductor serve`.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		WorkflowsDir: "workflows",
		LogLevel:     "info",
		LogFormat:    "text",
		Messenger:    MessengerConsole,
		Store: StoreConfig{
			Backend: BackendMemory,
			Dir:     ".conductor/tasks",
			LogPath: ".conductor/logs.jsonl",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "conductor:",
			},
			LockTTL: 30 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, applies CONDUCTOR_* environment
// overrides and validates the result. An empty path reads DefaultFile if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the receiver. Unknown fields are rejected.
func (c *Config) Parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CONDUCTOR_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}

	str("CONDUCTOR_WORKFLOWS_DIR", &c.WorkflowsDir)
	str("CONDUCTOR_TOOLS_FILE", &c.ToolsFile)
	str("CONDUCTOR_LOG_LEVEL", &c.LogLevel)
	str("CONDUCTOR_LOG_FORMAT", &c.LogFormat)
	str("CONDUCTOR_MESSENGER", &c.Messenger)
	str("CONDUCTOR_STORE", &c.Store.Backend)
	str("CONDUCTOR_STORE_DIR", &c.Store.Dir)
	str("CONDUCTOR_REDIS_ADDR", &c.Store.Redis.Addr)
	str("CONDUCTOR_REDIS_PASSWORD", &c.Store.Redis.Password)
	str("CONDUCTOR_REDIS_PREFIX", &c.Store.Redis.Prefix)
	str("CONDUCTOR_ENCRYPTION_KEY", &c.Security.EncryptionKey)
	list("CONDUCTOR_FALLBACK_KEYS", &c.Security.FallbackKeys)
	list("CONDUCTOR_PII_KEYS", &c.Security.PIIKeys)
	str("CONDUCTOR_HTTP_ADDR", &c.HTTP.Addr)

	if v, ok := lookup("CONDUCTOR_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONDUCTOR_REDIS_DB: %w", err)
		}
		c.Store.Redis.DB = db
	}
	if v, ok := lookup("CONDUCTOR_REDIS_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONDUCTOR_REDIS_TTL: %w", err)
		}
		c.Store.Redis.TTL = ttl
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file backend"))
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
		if c.Store.Redis.TTL < 0 {
			errs = append(errs, errors.New("store.redis.ttl must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.DistributedLock && c.Store.Backend != BackendRedis {
		errs = append(errs, errors.New("store.distributed_lock requires the redis backend"))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	errs = append(errs, c.validateMessengers()...)
	if _, _, err := c.Security.Keys(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Keys decodes the active and fallback encryption keys.
// A nil active key means encryption is disabled.
func (s SecurityConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("security.fallback_keys require security.encryption_key")
		}
		return nil, nil, nil
	}
	active, err = decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("security.encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Messengers returns the messenger kinds listed in Messenger, in order.
func (c *Config) Messengers() []string {
	var kinds []string
	for _, kind := range strings.Split(c.Messenger, ",") {
		if kind = strings.TrimSpace(kind); kind != "" {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (c *Config) validateMessengers() []error {
	kinds := c.Messengers()
	if len(kinds) == 0 {
		return []error{fmt.Errorf("unknown messenger %q", c.Messenger)}
	}
	var errs []error
	seen := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case MessengerConsole, MessengerLog:
		case MessengerNone:
			if len(kinds) > 1 {
				errs = append(errs, fmt.Errorf("messenger %q cannot be combined with others", MessengerNone))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown messenger %q", kind))
		}
		if seen[kind] {
			errs = append(errs, fmt.Errorf("messenger %q listed twice", kind))
		}
		seen[kind] = true
	}
	return errs
}
