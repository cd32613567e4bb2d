// pkg/config/config.go
//
// Layered configuration for diskstat: defaults, then an optional YAML file,
// then DISKSTAT_* environment variables, then command-line flags.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppID     = "diskstat"
	EnvPrefix = "DISKSTAT"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	DevDir             string        `mapstructure:"dev_dir" validate:"required"`
	SysBlockDir        string        `mapstructure:"sys_block_dir" validate:"required"`
	ProcDir            string        `mapstructure:"proc_dir" validate:"required"`
	StimulationTool    string        `mapstructure:"stimulation_tool" validate:"required"`
	StimulationTimeout time.Duration `mapstructure:"stimulation_timeout" validate:"gt=0"`
	Settle             time.Duration `mapstructure:"settle" validate:"gte=0"`
	NoStimulate        bool          `mapstructure:"no_stimulate"`
	RequireActivity    bool          `mapstructure:"require_activity"`
	Format             string        `mapstructure:"format" validate:"oneof=text json yaml"`
	Verbose            bool          `mapstructure:"verbose"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFile            string        `mapstructure:"log_file"`
	Telemetry          string        `mapstructure:"telemetry"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// SetDefaults registers every key with its default so env lookups and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dev_dir", "/dev")
	v.SetDefault("sys_block_dir", "/sys/block")
	v.SetDefault("proc_dir", "/proc")
	v.SetDefault("stimulation_tool", "hdparm")
	v.SetDefault("stimulation_timeout", 60*time.Second)
	v.SetDefault("settle", 5*time.Second)
	v.SetDefault("no_stimulate", false)
	v.SetDefault("require_activity", false)
	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("telemetry", "")
}

// SearchPaths lists the directories searched for config.yaml when no file is
// given explicitly.
func SearchPaths() []string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return []string{
		filepath.Join("/etc", AppID),
		filepath.Join(base, AppID),
	}
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	SetViperEnvPrefix(v, EnvPrefix)
	return v
}

// SetViperEnvPrefix lets Viper read env with prefix.
func SetViperEnvPrefix(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// BindFlagsToViper binds all flags on a command to a Viper instance. Flag
// names use dashes, config keys use underscores.
func BindFlagsToViper(cmd *cobra.Command, v *viper.Viper) error {
	var result error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || f.Name == "version" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// Load reads the optional config file and returns the validated result.
// An explicit configFile must exist; the search paths are optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, ds_err.NewValidationError(
				fmt.Sprintf("cannot read config file %s: %v", configFile, err),
				"Check the path passed to --config",
			)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !cerr.As(err, &notFound) {
				return nil, ds_err.NewValidationError("invalid config file: " + err.Error())
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ds_err.NewValidationError("invalid configuration: " + err.Error())
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report config keys, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the resolved configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if cerr.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ds_err.NewValidationError(
				fmt.Sprintf("invalid value %v for %s: failed '%s' check", fe.Value(), fe.Field(), fe.Tag()),
				"Valid formats are text, json and yaml; durations look like 5s or 1m",
			)
		}
		return ds_err.WrapValidationError(err)
	}
	return nil
}
