package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys recognised in config.yaml, DUOBOOK_* variables and CLI flags.
const (
	KeyDataDir  = "data_dir"
	KeyServer   = "server"
	KeyEmail    = "email"
	KeyLogFile  = "log_file"
	KeyLogLevel = "log_level"
	KeyTimeout  = "timeout"
)

// DefaultServer is used when neither configuration nor a previous login names
// a server.
const DefaultServer = "http://localhost:8080/"

// ClientConfig holds the settings of the duobook CLI.
type ClientConfig struct {
	DataDir  string
	Server   string
	Email    string
	LogFile  string
	LogLevel string
	Timeout  time.Duration
}

// DefaultDataDir returns the per-user directory the client keeps its store in.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "duobook")
	}
	return ".duobook"
}

// SetClientDefaults registers defaults and environment binding on v.
func SetClientDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyTimeout, 30*time.Second)

	v.SetEnvPrefix("duobook")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadClient reads config.yaml from the data directory, if present, and
// returns the merged configuration. Server is empty when nothing sets it.
func LoadClient(v *viper.Viper) (ClientConfig, error) {
	dataDir := v.GetString(KeyDataDir)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return ClientConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var server string
	if raw := v.GetString(KeyServer); raw != "" {
		normalized, err := NormalizeServerAddress(raw)
		if err != nil {
			return ClientConfig{}, err
		}
		server = normalized
	}

	cfg := ClientConfig{
		DataDir:  dataDir,
		Server:   server,
		Email:    v.GetString(KeyEmail),
		LogFile:  v.GetString(KeyLogFile),
		LogLevel: v.GetString(KeyLogLevel),
		Timeout:  v.GetDuration(KeyTimeout),
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "duobook.log")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}

// NormalizeServerAddress turns user input such as "example.com" into a base
// URL with a scheme and a trailing slash.
func NormalizeServerAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("server address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", addr)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}
