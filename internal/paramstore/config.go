package paramstore

import (
	"slices"
	"time"
)

const (
	ProviderSSM    = "ssm"
	ProviderStatic = "static"

	defaultTimeoutMS = 3000
)

var (
	supportedProviders = []string{ProviderSSM, ProviderStatic}
)

type Config struct {
	// Provider is where the remote registry coordinates are read from.
	Provider string `yaml:"provider"`

	// EndpointName and CredentialName are the parameter names holding the
	// registry endpoint and its API key. Leaving either empty disables the
	// remote path.
	EndpointName   string `yaml:"endpoint_name"`
	CredentialName string `yaml:"credential_name"`

	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// CacheTTLSeconds 0 keeps a resolved value for the process lifetime.
	CacheTTLSeconds uint `yaml:"cache_ttl_seconds"`

	TimeoutMS uint `yaml:"timeout_ms"`

	// Static parameters for the static provider.
	Static map[string]string `yaml:"static"`
}

func (c *Config) Validate() {
	if !slices.Contains(supportedProviders, c.Provider) {
		logger.Fatal().Msgf("Parameters: provider %q is not supported", c.Provider)
	}

	if c.EndpointName == "" || c.CredentialName == "" {
		logger.Warn().Msg("Parameters: endpoint or credential name is missing, remote registry is disabled")
	}

	if c.AccessKeyID != "" && c.SecretAccessKey == "" {
		logger.Fatal().Msg("Parameters: SecretAccessKey is missing")
	}

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = defaultTimeoutMS
	}
}

func (c *Config) cacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
