package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

// LogFormat selects the slog handler.
type LogFormat string

const (
	ConnectorIP       ConnectorType = "ip"
	ConnectorSerial   ConnectorType = "serial"
	DefaultSerialBaud               = 115200
	DefaultIPPort                   = 23

	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var (
	ErrHostRequired       = errors.New("ip host is required")
	ErrSerialPortRequired = errors.New("serial port is required")
)

type LoggingConfig struct {
	Level     string    `toml:"level"`
	Format    LogFormat `toml:"format"`
	LogToFile bool      `toml:"log_to_file"`
}

// ConnectionConfig holds the parameters of both connectors; only the fields of
// the selected one are validated.
type ConnectionConfig struct {
	Connector  ConnectorType `toml:"connector"`
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	SerialPort string        `toml:"serial_port"`
	SerialBaud int           `toml:"serial_baud"`
}

type UIConfig struct {
	// Autoload queries machine settings once the connection is ready.
	Autoload      bool               `toml:"autoload"`
	Language      string             `toml:"language"`
	Notifications NotificationConfig `toml:"notifications"`
}

type NotificationConfig struct {
	Desktop bool `toml:"desktop"`
}

// AppConfig is the persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `toml:"connection"`
	Logging    LoggingConfig    `toml:"logging"`
	UI         UIConfig         `toml:"ui"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorSerial,
			Port:       DefaultIPPort,
			SerialBaud: DefaultSerialBaud,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: LogFormatText,
		},
		UI: UIConfig{
			Autoload: true,
			Language: "en",
			Notifications: NotificationConfig{
				Desktop: true,
			},
		},
	}
}

// Load reads the config at path on top of Default. A missing file yields the
// defaults. Unknown keys are logged and ignored.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	meta, err := toml.Decode(string(raw), &cfg)
	if err != nil {
		return AppConfig{}, fmt.Errorf("decode config toml: %w", err)
	}
	for _, key := range meta.Undecoded() {
		slog.Warn("unknown config key ignored", "key", key.String(), "path", path)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	conn := &c.Connection
	if conn.Connector == "" {
		conn.Connector = ConnectorSerial
	}
	if conn.SerialBaud <= 0 {
		conn.SerialBaud = DefaultSerialBaud
	}
	if conn.Port <= 0 {
		conn.Port = DefaultIPPort
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = normalizeLogFormat(c.Logging.Format)
	if strings.TrimSpace(c.UI.Language) == "" {
		c.UI.Language = "en"
	}
}

func normalizeLogFormat(format LogFormat) LogFormat {
	if LogFormat(strings.ToLower(strings.TrimSpace(string(format)))) == LogFormatJSON {
		return LogFormatJSON
	}

	return LogFormatText
}

// Validate checks the section of the selected connector.
func (c AppConfig) Validate() error {
	conn := c.Connection
	switch conn.Connector {
	case ConnectorIP:
		var errs []error
		if strings.TrimSpace(conn.Host) == "" {
			errs = append(errs, ErrHostRequired)
		}
		if conn.Port <= 0 || conn.Port > 65535 {
			errs = append(errs, fmt.Errorf("ip port out of range: %d", conn.Port))
		}

		return errors.Join(errs...)
	case ConnectorSerial:
		var errs []error
		if strings.TrimSpace(conn.SerialPort) == "" {
			errs = append(errs, ErrSerialPortRequired)
		}
		if conn.SerialBaud <= 0 {
			errs = append(errs, fmt.Errorf("serial baud must be positive: %d", conn.SerialBaud))
		}

		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown connector: %q", conn.Connector)
	}
}

// Save validates cfg and replaces the file at path through a temp file rename.
func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
