package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var ErrApplicationConfigNotFound = errors.New("application config not found")

type Application struct {
	ConfigPath string   `yaml:",omitempty" mapstructure:"-"`
	Verbose    bool     `yaml:"verbose" mapstructure:"verbose"` // -v, raise the log level to debug
	Output     output   `yaml:"output" mapstructure:"output"`
	Pipeline   pipeline `yaml:"pipeline" mapstructure:"pipeline"`
	Scanner    scanner  `yaml:"scanner" mapstructure:"scanner"`
	Log        logging  `yaml:"log" mapstructure:"log"`
}

type output struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"` // json or yaml
	DB     string `yaml:"db" mapstructure:"db"`         // sqlite history, empty disables it
}

type pipeline struct {
	ShareSession bool `yaml:"share_session" mapstructure:"share_session"`
}

type scanner struct {
	Binary  string        `yaml:"binary" mapstructure:"binary"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type logging struct {
	Level        string `yaml:"level" mapstructure:"level"`
	FileLocation string `yaml:"file" mapstructure:"file"`
	Quiet        bool   `yaml:"quiet" mapstructure:"quiet"` // no console logging
	Structured   bool   `yaml:"structured" mapstructure:"structured"`
}

func loadDefaultValues(v *viper.Viper) {
	v.SetDefault("verbose", false)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", "json")
	v.SetDefault("output.db", "")

	v.SetDefault("pipeline.share_session", false)

	v.SetDefault("scanner.binary", "trivy")
	v.SetDefault("scanner.timeout", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.structured", false)
	v.SetDefault("log.quiet", false)
}

// LoadApplicationConfig merges defaults, the config file, the environment
// and any flags already bound to v.
func LoadApplicationConfig(v *viper.Viper, configPath string) (*Application, error) {
	loadDefaultValues(v)

	// running without a config file is fine
	if err := readConfig(v, configPath); err != nil && !errors.Is(err, ErrApplicationConfigNotFound) {
		return nil, err
	}

	cfg := &Application{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.parseConfigValues(); err != nil {
		return nil, fmt.Errorf("invalid application config: %w", err)
	}

	return cfg, nil
}

func (cfg *Application) parseConfigValues() error {
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	switch cfg.Output.Format {
	case "json", "yaml":
	case "yml":
		cfg.Output.Format = "yaml"
	default:
		return fmt.Errorf("bad output format %q", cfg.Output.Format)
	}

	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}

	if cfg.Scanner.Timeout < 0 {
		return fmt.Errorf("bad scanner timeout %s", cfg.Scanner.Timeout)
	}
	return nil
}

func (cfg Application) String() string {
	appCfgStr, err := yaml.Marshal(&cfg)
	if err != nil {
		return err.Error()
	}
	return string(appCfgStr)
}

// readConfig reads the given config path or looks for .verity.yaml in the
// working directory and then the home directory.
func readConfig(v *viper.Viper, configPath string) error {
	v.AutomaticEnv()
	v.SetEnvPrefix(ApplicationName)
	// output.dir is VERITY_OUTPUT_DIR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read application config=%q : %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName("." + ApplicationName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", ApplicationName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrApplicationConfigNotFound
		}
		return fmt.Errorf("unable to parse config=%q: %w", v.ConfigFileUsed(), err)
	}
	return nil
}
