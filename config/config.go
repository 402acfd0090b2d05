package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	appName        = "dictate"
	configFileName = "settings.json"
	historyName    = "transcription_history.json"

	// EnvAPIKey is consulted when no key is stored in the settings file
	EnvAPIKey = "OPENAI_API_KEY"

	BackendOpenAI = "openai"
	BackendHTTP   = "http"
)

// Settings is the persisted application configuration
type Settings struct {
	APIKey   string `json:"api_key,omitempty"`
	Backend  string `json:"backend" validate:"oneof=openai http"`
	Model    string `json:"model" validate:"required"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`

	// OpenAI-compatible server root, e.g. http://localhost:8000/v1/
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`

	// Generic upload target for the http backend
	Endpoint string `json:"endpoint,omitempty" validate:"required_if=Backend http"`
	TextPath string `json:"text_path,omitempty"`

	RequestTimeout Duration `json:"request_timeout" validate:"gt=0"`
	EnableHTTP2    bool     `json:"enable_http2"`
	VerifySSL      bool     `json:"verify_ssl"`

	HistoryFile string `json:"history_file" validate:"required"`
	TempDir     string `json:"temp_dir,omitempty"`

	AutoPaste     bool `json:"auto_paste"`
	Notifications bool `json:"notifications"`

	ListenAddr string `json:"listen_addr,omitempty" validate:"omitempty,hostname_port"`

	LogFile  string `json:"log_file,omitempty"`
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	Device          int `json:"device" validate:"gte=0"`
	FramesPerBuffer int `json:"frames_per_buffer" validate:"gte=64,lte=16384"`
}

// Duration marshals as a Go duration string such as "60s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Second)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultPath returns the settings file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func DefaultSettings() Settings {
	historyFile := historyName
	if dir, err := Dir(); err == nil {
		historyFile = filepath.Join(dir, historyName)
	}
	return Settings{
		Backend:         BackendOpenAI,
		Model:           "whisper-1",
		TextPath:        "text",
		RequestTimeout:  Duration(60 * time.Second),
		EnableHTTP2:     true,
		VerifySSL:       true,
		HistoryFile:     historyFile,
		AutoPaste:       true,
		Notifications:   true,
		LogLevel:        "info",
		FramesPerBuffer: 1024,
	}
}

// Load reads settings from path on top of the defaults. A missing file is not
// an error.
func Load(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// Save writes s to path as indented JSON.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks s against its struct tags.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ResolveAPIKey returns the stored key, else $OPENAI_API_KEY, else "".
func (s Settings) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	return os.Getenv(EnvAPIKey)
}

// SlogLevel maps LogLevel onto slog.
func (s Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LoadEnv reads .env files into the environment without overriding
// variables that are already set. A missing file is ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No .env file found, falling back to environment variables", "path", f)
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}
