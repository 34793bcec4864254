package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv layers CHATHUB_* environment overrides onto cfg. Returns
// whether any override was applied.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("CHATHUB_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
		cfg.Server.Port = 0
		used = true
	}
	if v := os.Getenv("CHATHUB_SERVER_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("CHATHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("CHATHUB_API_BACKEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Backend = splitKeys(v)
		used = true
	}
	if v := os.Getenv("CHATHUB_API_FRONTEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Frontend = splitKeys(v)
		used = true
	}
	if v := os.Getenv("CHATHUB_API_ADMIN_KEYS"); v != "" {
		cfg.Security.APIKeys.Admin = splitKeys(v)
		used = true
	}
	if v := os.Getenv("CHATHUB_ALLOW_UNAUTH"); v != "" {
		cfg.Security.APIKeys.AllowUnauth = boolish(v)
		used = true
	}
	if v := os.Getenv("CHATHUB_BRIDGE_ADDR"); v != "" {
		cfg.Bridge.Enabled = true
		cfg.Bridge.Addr = v
		used = true
	}
	return used
}

func splitKeys(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolish(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// EffectiveConfigResult is the merged view of file + env + flags that the
// rest of the process runs on.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // comma-joined: "config", "env", "flags"
}

// LoadEffective merges the config file (when present), environment
// overrides and explicitly-set flags, flags winning. A missing config
// file is not an error; a malformed one is.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfg, filePresent, err := ParseConfigFile(flags)
	if err != nil {
		return EffectiveConfigResult{}, err
	}
	envUsed := applyEnv(cfg)

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" || flags.Set["db"] {
		dbPath = flags.DB
	}

	var srcs []string
	if filePresent {
		srcs = append(srcs, "config")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if len(flags.Set) > 0 {
		srcs = append(srcs, "flags")
	}
	if len(srcs) == 0 {
		srcs = append(srcs, "defaults")
	}
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   addr,
		DBPath: dbPath,
		Source: strings.Join(srcs, ", "),
	}, nil
}
