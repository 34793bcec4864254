package config

import (
	"flag"
	"os"

	"github.com/dustin/go-humanize"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "message store path")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, whether the file was present, and an error
// for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then the CHATHUB_CONFIG env var, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if env := os.Getenv("CHATHUB_CONFIG"); env != "" {
		return env
	}
	return flagVal
}

// MaxFileBytes parses the configured attachment size limit. Zero means
// "use the built-in default".
func (c *Config) MaxFileBytes() (uint64, error) {
	if c.Limits.MaxFileSize == "" {
		return 0, nil
	}
	return humanize.ParseBytes(c.Limits.MaxFileSize)
}
