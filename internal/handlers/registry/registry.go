// Package registry serves the invite code registry: a lookup and usage API for
// the admission gate and a CRUD API for administrators.
package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/membergate/internal/gormw"
)

var (
	logger = log.With().Str("component", "registry").Logger()
)

type Config struct {
	// APIKeyHash is the bcrypt hash of the key the gate sends.
	APIKeyHash string `yaml:"api_key_hash"`

	// AdminPublicKeyPEM verifies admin tokens, RSA public key in PEM format.
	AdminPublicKeyPEM string `yaml:"admin_public_key_pem"`
}

func (c *Config) Validate() {
	if c.APIKeyHash == "" {
		logger.Fatal().Msg("APIKeyHash is missing")
	}
	if c.AdminPublicKeyPEM == "" {
		logger.Fatal().Msg("AdminPublicKeyPEM is missing")
	}
}

type Registry struct {
	conf     *Config
	db       *gormw.DB
	adminKey jwk.Key
}

func New(conf *Config, db *gormw.DB) *Registry {
	key, err := jwk.ParseKey([]byte(conf.AdminPublicKeyPEM), jwk.WithPEM(true))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse admin public key")
	}

	return &Registry{
		conf:     conf,
		db:       db,
		adminKey: key,
	}
}

func (r *Registry) RegisterHandlers(rg *gin.RouterGroup) {
	v1 := rg.Group("/v1", r.apiKeyAuth())
	{
		v1.GET("/invite-codes", r.handleFindByCode)
		v1.PATCH("/invite-codes/:id/usage", r.handleSetUsage)
	}

	admin := rg.Group("/admin", r.AdminAuth())
	{
		admin.POST("/invite-codes", r.handleCreate)
		admin.GET("/invite-codes", r.handleList)
		admin.GET("/invite-codes/stats", r.handleStats)
		admin.GET("/invite-codes/:id", r.handleGet)
		admin.PUT("/invite-codes/:id", r.handleUpdate)
		admin.DELETE("/invite-codes/:id", r.handleDelete)
	}
}

func responseError(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, gin.H{"message": msg})
}

func responseDBError(c *gin.Context, err error, msg string) {
	logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	responseError(c, http.StatusInternalServerError, "Database error")
}
