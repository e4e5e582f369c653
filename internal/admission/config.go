package admission

import "time"

const (
	defaultRemoteTimeoutMS     = 5000
	defaultAccountingTimeoutMS = 5000
)

type Config struct {
	// FallbackCodesEnv names the environment variable holding the comma
	// separated fallback codes.
	FallbackCodesEnv string `yaml:"fallback_codes_env"`

	RemoteTimeoutMS     uint `yaml:"remote_timeout_ms"`
	AccountingTimeoutMS uint `yaml:"accounting_timeout_ms"`
}

func (c *Config) ApplyDefaults() {
	if c.FallbackCodesEnv == "" {
		c.FallbackCodesEnv = DefaultFallbackCodesEnv
	}
	if c.RemoteTimeoutMS == 0 {
		c.RemoteTimeoutMS = defaultRemoteTimeoutMS
	}
	if c.AccountingTimeoutMS == 0 {
		c.AccountingTimeoutMS = defaultAccountingTimeoutMS
	}
}

func (c *Config) remoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}

func (c *Config) accountingTimeout() time.Duration {
	return time.Duration(c.AccountingTimeoutMS) * time.Millisecond
}
