// Package firewall reports misbehaving registry callers to the network
// firewall, which bans an IP after repeated errors.
package firewall

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fw "github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/gcplog"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/charleshuang3/firewall/opn"
	"github.com/charleshuang3/firewall/pf"
	"github.com/charleshuang3/firewall/ros"
	"github.com/charleshuang3/firewall/zerolog"
)

var (
	logger = log.With().Str("component", "firewall").Logger()
)

const (
	appName = "membergate-registry"

	providerNone = "none"

	defaultBanMinutes       = 10
	defaultDurationInMinute = 10
	defaultCount            = 3

	// KeyHackingError is the gin context key holding the reason a request
	// looks like an attack.
	KeyHackingError = "HACKING_ERROR"

	reasonUndefinedURL = "undefined_url"
)

var (
	supportedProviders = []string{providerNone, "ros", "opn", "pf"}
)

type ForgivableError struct {
	DurationInMinute uint `yaml:"duration_in_minute"`
	Count            uint `yaml:"count"`
}

type Config struct {
	Provider         string          `yaml:"provider"`
	ProviderIP       string          `yaml:"provider_ip"`
	ProviderUser     string          `yaml:"provider_user"`
	ProviderPassword string          `yaml:"provider_password"`
	ListUUID         string          `yaml:"list_uuid"`
	BanMinutes       uint            `yaml:"ban_minutes"`
	Whitelist        []string        `yaml:"whitelist"`
	Forgivable       ForgivableError `yaml:"forgivable"`

	// Geo lookups are optional, all four files must be set to enable them.
	CityDBFile        string `yaml:"city_db_file"`
	UpdatedCityDBFile string `yaml:"updated_city_db_file"`
	ASNDBFile         string `yaml:"asn_db_file"`
	UpdatedASNDBFile  string `yaml:"updated_asn_db_file"`

	GoogleKeyFile   string `yaml:"google_key_file"`
	GoogleProjectID string `yaml:"google_project_id"`
}

func (c *Config) Validate() {
	if c.Provider == "" {
		c.Provider = providerNone
	}

	if !slices.Contains(supportedProviders, c.Provider) {
		logger.Fatal().Msgf("Provider %s is not supported", c.Provider)
	}

	if c.Provider != providerNone {
		if c.ProviderIP == "" {
			logger.Fatal().Msg("ProviderIP is missing")
		}
		if c.ProviderUser == "" {
			logger.Fatal().Msg("ProviderUser is missing")
		}
		if c.ProviderPassword == "" {
			logger.Fatal().Msg("ProviderPassword is missing")
		}
		if c.Provider == "opn" && c.ListUUID == "" {
			logger.Fatal().Msg("ListUUID is missing")
		}
	}

	geoFiles := []string{c.CityDBFile, c.UpdatedCityDBFile, c.ASNDBFile, c.UpdatedASNDBFile}
	if slices.Contains(geoFiles, "") && slices.ContainsFunc(geoFiles, func(s string) bool { return s != "" }) {
		logger.Fatal().Msg("Geo DB files must be all set or all empty")
	}

	if c.GoogleKeyFile != "" && c.GoogleProjectID == "" {
		logger.Fatal().Msg("GoogleProjectID is missing")
	}

	c.applyDefault()
}

func (c *Config) applyDefault() {
	if c.BanMinutes == 0 {
		c.BanMinutes = defaultBanMinutes
	}
	if c.Forgivable.DurationInMinute == 0 {
		c.Forgivable.DurationInMinute = defaultDurationInMinute
	}
	if c.Forgivable.Count == 0 {
		c.Forgivable.Count = defaultCount
	}
}

func (c *Config) geoEnabled() bool {
	return c.CityDBFile != ""
}

func (c *Config) forgivable() fw.ForgivableError {
	return fw.ForgivableError{
		Duration:    time.Duration(c.Forgivable.DurationInMinute) * time.Minute,
		Count:       int(c.Forgivable.Count),
		BanInMinute: int(c.BanMinutes),
	}
}

type Firewall struct {
	fw   *fw.Firewall
	conf *Config
}

func New(conf *Config) *Firewall {
	provider := newProvider(conf)
	fwlogger := newLogger(conf)

	if !conf.geoEnabled() {
		logger.Warn().Msg("Geo DB files not set, firewall logs carry no location")
		return &Firewall{
			fw:   fw.New(conf.Whitelist, provider, fwlogger, nil, conf.forgivable()),
			conf: conf,
		}
	}

	mm, err := ipgeo.NewAutoUpdateMMIPGeo(
		conf.CityDBFile,
		conf.UpdatedCityDBFile,
		conf.ASNDBFile,
		conf.UpdatedASNDBFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open geo DB")
	}

	return &Firewall{
		fw:   fw.New(conf.Whitelist, provider, fwlogger, mm, conf.forgivable()),
		conf: conf,
	}
}

// newProvider returns nil for "none", which logs without ever blocking.
func newProvider(conf *Config) fw.IFirewall {
	switch conf.Provider {
	case "ros":
		return ros.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "pf":
		return pf.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "opn":
		return opn.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword, conf.ListUUID)
	default:
		return nil
	}
}

func newLogger(conf *Config) fw.ILogger {
	if conf.GoogleKeyFile == "" {
		return zerolog.New(logger, zlog.InfoLevel, appName)
	}

	l, err := gcplog.New(conf.GoogleKeyFile, conf.GoogleProjectID, appName)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create gcp logger")
	}
	return l
}

// MarkSuspicious flags the request so the middleware counts it against the
// caller's IP once the handler returns.
func MarkSuspicious(c *gin.Context, reason string) {
	c.Set(KeyHackingError, c.FullPath()+" "+reason)
}

func (f *Firewall) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if reason, ok := c.Get(KeyHackingError); ok {
			f.fw.LogIPError(c.ClientIP(), reason.(string))
			return
		}

		// probing for routes the registry does not serve.
		if c.Writer.Status() == http.StatusNotFound && c.FullPath() == "" {
			f.fw.LogIPError(c.ClientIP(), reasonUndefinedURL)
		}
	}
}
