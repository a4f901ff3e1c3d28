// Package config loads the greeter server settings from an optional file
// and GREETER_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	ex "github.com/marsevilspirit/greeter/errors"
)

const EnvPrefix = "GREETER"

type Config struct {
	Network      string        `mapstructure:"network"`
	Address      string        `mapstructure:"address"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// TLS is enabled when both files are set.
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	// MetricsAddress serves /metrics and /debug/requests when set.
	MetricsAddress string `mapstructure:"metrics_address"`
	// MetricsReportInterval logs the in-process metrics this often. Zero
	// disables the report.
	MetricsReportInterval time.Duration `mapstructure:"metrics_report_interval"`
	Trace                 bool          `mapstructure:"trace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "tcp")
	v.SetDefault("address", ":50051")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_timeout", time.Duration(0))
	v.SetDefault("write_timeout", time.Duration(0))
	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")
	v.SetDefault("metrics_address", "")
	v.SetDefault("metrics_report_interval", time.Duration(0))
	v.SetDefault("trace", false)
}

// Load reads path (YAML, JSON or TOML, by extension) when it is not empty,
// then applies environment overrides such as GREETER_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ex.New(ex.ErrCodeInvalidRequest, "config: failed to read config file").
				WithDetail("path", path).
				WithCause(err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, ex.New(ex.ErrCodeInvalidRequest, "config: failed to decode config").WithCause(err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	var errs ex.MultiError
	if c.Network == "" {
		errs.Add(ex.New(ex.ErrCodeInvalidRequest, "config: network must not be empty"))
	}
	if c.Address == "" {
		errs.Add(ex.New(ex.ErrCodeInvalidRequest, "config: address must not be empty"))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.MetricsReportInterval < 0 {
		errs.Add(ex.New(ex.ErrCodeInvalidRequest, "config: durations must not be negative"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs.Add(ex.New(ex.ErrCodeInvalidRequest, "config: tls_cert_file and tls_key_file must be set together"))
	}
	return errs.ErrorOrNil()
}
