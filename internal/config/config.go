package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Backend names.
const (
	BackendGemini = "gemini"
	BackendGroq   = "groq"
)

type Config struct {
	Backend       string `json:"backend"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Gemini        struct {
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
	} `json:"gemini"`
	Groq struct {
		APIKey      string  `json:"api_key"`
		BaseURL     string  `json:"base_url"`
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	} `json:"groq"`
	Chat struct {
		SystemPrompt     string `json:"system_prompt"`
		Greeting         string `json:"greeting"`
		MaxContextTokens int    `json:"max_context_tokens"`
		OutputReserve    int    `json:"output_reserve"`
	} `json:"chat"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	HTTP struct {
		// Listen is the address for the JSON API; empty disables it.
		Listen string `json:"listen"`
	} `json:"http"`
}

// DefaultPath returns ~/.toolchat/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".toolchat", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		Backend:       BackendGroq,
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Gemini.Model = "gemini-1.5-pro"
	cfg.Gemini.Temperature = 0.7
	cfg.Groq.BaseURL = "https://api.groq.com/openai/v1"
	cfg.Groq.Model = "llama3-8b-8192"
	cfg.Groq.MaxTokens = 1024
	cfg.Groq.Temperature = 0.7
	cfg.Chat.Greeting = "Hello! How can I assist you today?"
	cfg.Chat.MaxContextTokens = 8192
	cfg.Chat.OutputReserve = 1024
	return cfg
}

// Load reads the config file at path, writing defaults first if it does not
// exist. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		cfg.Groq.APIKey = key
	}
	if baseURL := os.Getenv("GROQ_BASE_URL"); baseURL != "" {
		cfg.Groq.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if backend := os.Getenv("TOOLCHAT_BACKEND"); backend != "" {
		cfg.Backend = backend
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat map of dot-separated keys, optionally
// with secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored under a dot-separated key in the config
// file. The file is created with defaults if missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(data, key)
	if !res.Exists() {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return res.Value(), nil
}

// SetValue stores value under a dot-separated key in an existing config
// file. Values that parse as JSON scalars (numbers, booleans) are stored
// typed unless the field is a string; anything else is stored as a string.
// Unknown keys are kept. A value the Config struct cannot load is rejected
// and the file is left untouched.
func SetValue(path, key, value string) error {
	data, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil || isContainer(parsed) {
		parsed = value
	}

	out, err := sjson.SetBytes(data, key, parsed)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := checkLoadable(out); err != nil {
		if _, isString := parsed.(string); isString {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		// Scalar text such as "42" for a string field.
		out, err = sjson.SetBytes(data, key, value)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		if err := checkLoadable(out); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return writeFile(path, pretty.Pretty(out))
}

func checkLoadable(data []byte) error {
	var cfg Config
	return json.Unmarshal(data, &cfg)
}

func readRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse %s: invalid JSON", path)
	}
	return data, nil
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// ErrMissingCredential reports that no API key is configured for a backend.
var ErrMissingCredential = errors.New("missing API credential")

// MissingCredentialError names the provider whose key is missing.
type MissingCredentialError struct {
	Provider string
	EnvVar   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("Please set the %s API key in environment variables or the config file!", e.Provider)
}

func (e *MissingCredentialError) Is(target error) bool { return target == ErrMissingCredential }

// ResolveCredential returns the API key for backend. Environment overrides
// have already been applied by Load.
func ResolveCredential(cfg *Config, backend string) (string, error) {
	switch strings.ToLower(backend) {
	case BackendGemini:
		if cfg.Gemini.APIKey == "" {
			return "", &MissingCredentialError{Provider: "Google", EnvVar: "GOOGLE_API_KEY"}
		}
		return cfg.Gemini.APIKey, nil
	case BackendGroq:
		if cfg.Groq.APIKey == "" {
			return "", &MissingCredentialError{Provider: "Groq", EnvVar: "GROQ_API_KEY"}
		}
		return cfg.Groq.APIKey, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %s or %s)", backend, BackendGemini, BackendGroq)
	}
}
