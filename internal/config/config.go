package config

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/charleshuang3/membergate/internal/admission"
	"github.com/charleshuang3/membergate/internal/gormw"
	"github.com/charleshuang3/membergate/internal/handlers/firewall"
	"github.com/charleshuang3/membergate/internal/handlers/registry"
	"github.com/charleshuang3/membergate/internal/paramstore"
)

var (
	logger = log.With().Str("component", "config").Logger()
)

// GateConfig configures the admission gate binary.
type GateConfig struct {
	Port    uint   `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// HookToken, when set, must be sent as a Bearer token by the identity
	// provider.
	HookToken string `yaml:"hook_token"`

	Admission  admission.Config  `yaml:"admission"`
	Parameters paramstore.Config `yaml:"parameters"`
}

// RegistryConfig configures the invite code registry binary.
type RegistryConfig struct {
	Port    uint   `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	Registry registry.Config `yaml:",inline"`
	DB       gormw.Config    `yaml:"db"`
	Firewall firewall.Config `yaml:"firewall"`
}

func LoadGateConfig(path string) *GateConfig {
	cfg := &GateConfig{}
	load(path, cfg)
	cfg.validate()
	return cfg
}

func LoadRegistryConfig(path string) *RegistryConfig {
	cfg := &RegistryConfig{}
	load(path, cfg)
	cfg.validate()
	return cfg
}

func load(path string, cfg any) {
	file, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open config file: %s", path)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to decode config file")
	}
}

func validateServer(port uint, ginMode string) {
	if port == 0 {
		logger.Fatal().Msg("Port is missing")
	}

	if ginMode == "" {
		logger.Fatal().Msg("GinMode is missing")
	}
}

func (c *GateConfig) validate() {
	validateServer(c.Port, c.GinMode)

	c.Admission.ApplyDefaults()
	c.Parameters.Validate()
}

func (c *RegistryConfig) validate() {
	validateServer(c.Port, c.GinMode)

	c.Registry.Validate()
	c.Firewall.Validate()
}
