package config

import "fmt"

// Config is the main configuration struct, loaded from YAML with env and
// flag overrides on top.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		DBPath  string `yaml:"db_path"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		IPWhitelist []string `yaml:"ip_whitelist"`
		APIKeys     struct {
			Backend  []string `yaml:"backend"`
			Frontend []string `yaml:"frontend"`
			Admin    []string `yaml:"admin"`
			// AllowUnauth opens the websocket endpoint and health
			// probes to unauthenticated clients (development mode).
			AllowUnauth bool `yaml:"allow_unauth"`
		} `yaml:"api_keys"`
	} `yaml:"security"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`

	Hub struct {
		// LifecycleBroadcast is "participants" (default) or "all":
		// whether status/edit/delete events reach only the dialog's two
		// participants or every connection.
		LifecycleBroadcast string `yaml:"lifecycle_broadcast"`
	} `yaml:"hub"`

	Limits struct {
		MaxTextLen  int `yaml:"max_text_len"`
		MaxFileName int `yaml:"max_file_name"`
		// MaxFileSize accepts human-readable sizes ("8 MiB", "512KB").
		MaxFileSize string `yaml:"max_file_size"`
	} `yaml:"limits"`

	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		// Period is how long tombstones are kept before the hard purge,
		// as a Go duration ("720h").
		Period string `yaml:"period"`
	} `yaml:"retention"`

	Bridge struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Channel  string `yaml:"channel"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"bridge"`
}

// Addr returns the effective listen address.
func (c *Config) Addr() string {
	addr := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		if addr != "" {
			return addr
		}
		return ":8080"
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LifecycleBroadcastAll reports whether lifecycle events go to everyone.
func (c *Config) LifecycleBroadcastAll() bool {
	return c.Hub.LifecycleBroadcast == "all"
}
