package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/busyline/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("sessions", cfg.Sessions)
	v.SetDefault("display.busy_color", cfg.Display.BusyColor)
	v.SetDefault("display.current_idle_color", cfg.Display.CurrentIdleColor)
	v.SetDefault("display.other_idle_color", cfg.Display.OtherIdleColor)
	v.SetDefault("display.current_mark_color", cfg.Display.CurrentMarkColor)
	v.SetDefault("display.separator", cfg.Display.Separator)
	v.SetDefault("display.mnemonics", cfg.Display.Mnemonics)
	v.SetDefault("http.socket_path", cfg.HTTP.SocketPath)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("tmux.option", cfg.Tmux.Option)
	v.SetDefault("tmux.conn_option", cfg.Tmux.ConnOption)
	v.SetDefault("tmux.poll_interval_ms", cfg.Tmux.PollIntervalMS)
	v.SetDefault("tmux.refresh", cfg.Tmux.Refresh)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("sessions") {
			return Config{}, fmt.Errorf("sessions is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if len(cfg.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	seen := make(map[string]struct{}, len(cfg.Sessions))
	for i, session := range cfg.Sessions {
		if strings.TrimSpace(session.ID) == "" {
			return fmt.Errorf("sessions[%d].id is required", i)
		}
		if err := schema.ValidateConnID(schema.ConnID(session.ID)); err != nil {
			return fmt.Errorf("sessions[%d].id: %w", i, err)
		}
		if _, dup := seen[session.ID]; dup {
			return fmt.Errorf("sessions[%d].id %q is duplicated", i, session.ID)
		}
		seen[session.ID] = struct{}{}
		if strings.TrimSpace(session.URL) == "" {
			return fmt.Errorf("sessions[%d].url is required", i)
		}
	}
	if err := validateColor("display.busy_color", cfg.Display.BusyColor); err != nil {
		return err
	}
	if err := validateColor("display.current_idle_color", cfg.Display.CurrentIdleColor); err != nil {
		return err
	}
	if err := validateColor("display.other_idle_color", cfg.Display.OtherIdleColor); err != nil {
		return err
	}
	if err := validateColor("display.current_mark_color", cfg.Display.CurrentMarkColor); err != nil {
		return err
	}
	for i, rule := range cfg.Display.Mnemonics {
		if strings.TrimSpace(rule.Match) == "" {
			return fmt.Errorf("display.mnemonics[%d].match is required", i)
		}
	}
	if strings.TrimSpace(cfg.HTTP.SocketPath) == "" && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("http.socket_path or http.addr is required")
	}
	if cfg.Tmux.PollIntervalMS < 0 {
		return fmt.Errorf("tmux.poll_interval_ms must not be negative")
	}
	return nil
}

func validateColor(key, value string) error {
	if value == "" {
		return nil
	}
	if _, err := schema.NormalizeHexColor(value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.HTTP.SocketPath = expandEnv(cfg.HTTP.SocketPath)
	for i := range cfg.Sessions {
		cfg.Sessions[i].URL = expandEnv(cfg.Sessions[i].URL)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
