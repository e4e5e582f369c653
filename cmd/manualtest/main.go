// manualtest runs a registry on :8081 with a few codes and a gate on :8080
// wired to it, for poking at the pre-signup hook with curl.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/charleshuang3/membergate/internal/admission"
	"github.com/charleshuang3/membergate/internal/gormw"
	"github.com/charleshuang3/membergate/internal/handlers/firewall"
	"github.com/charleshuang3/membergate/internal/handlers/presignup"
	"github.com/charleshuang3/membergate/internal/handlers/registry"
	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
	"github.com/charleshuang3/membergate/internal/registryclient"
	"github.com/charleshuang3/membergate/internal/storage"
	"github.com/charleshuang3/membergate/testdata"
)

const (
	registryPort = 8081
	gatePort     = 8080

	apiKey = "manual-test-api-key"
)

func main() {
	gin.SetMode(gin.DebugMode)
	metrics.MustRegister()

	db, err := gormw.Open(&gormw.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	scheduler, _ := gocron.NewScheduler()
	scheduler.Start()
	storage.RegisterExpiredInviteCodesDeactivator(scheduler, db)

	preloadData(db)

	go runRegistry(db)
	time.Sleep(time.Second)

	log.Info().Msgf("admin token: %s", adminToken())
	log.Info().Msgf("try: curl -XPOST localhost:%d/hooks/pre-signup -d '%s'", gatePort,
		`{"userName":"tanaka","request":{"clientMetadata":{"inviteCode":"KENDO2024"}}}`)

	runGate()
}

func runRegistry(db *gormw.DB) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate bcrypt hash")
	}

	fwConf := &firewall.Config{}
	fwConf.Validate()
	fw := firewall.New(fwConf)

	router := gin.Default()
	router.Use(fw.Middleware())

	reg := registry.New(&registry.Config{
		APIKeyHash:        string(hash),
		AdminPublicKeyPEM: testdata.PublicKeyPEM,
	}, db)
	reg.RegisterHandlers(router.Group("/"))
	fw.RegisterHandlers(router.Group("/admin/firewall", reg.AdminAuth()))

	log.Info().Msgf("Starting registry on :%d", registryPort)
	if err := router.Run(fmt.Sprintf(":%d", registryPort)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start registry")
	}
}

func runGate() {
	params := &paramstore.Config{
		Provider:       paramstore.ProviderStatic,
		EndpointName:   "endpoint",
		CredentialName: "api-key",
		Static: map[string]string{
			"endpoint": fmt.Sprintf("http://127.0.0.1:%d", registryPort),
			"api-key":  apiKey,
		},
	}
	params.Validate()

	source, err := paramstore.NewSource(context.Background(), params)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create parameter source")
	}

	gate := admission.NewGate(
		paramstore.NewResolver(source, params),
		registryclient.New(&http.Client{}),
		&admission.Config{},
	)

	router := gin.Default()
	presignup.New(gate, "").RegisterHandlers(router.Group("/"))
	router.GET("/metrics", metrics.Handler())

	log.Info().Msgf("Starting gate on :%d", gatePort)
	if err := router.Run(fmt.Sprintf(":%d", gatePort)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start gate")
	}
}

func preloadData(db *gormw.DB) {
	limit := uint(10)
	expired := time.Now().AddDate(0, -1, 0)

	codes := []*models.InviteCode{
		{Code: "KENDO2024", IsActive: true, UsageCount: 5, Note: "open code"},
		{Code: "OLD2020", IsActive: true, UsageLimit: &limit, UsageCount: 10, Note: "used up"},
		{Code: "PAUSED", IsActive: false, Note: "deactivated"},
		{Code: "LASTYEAR", IsActive: true, ExpiresAt: &expired, Note: "expired"},
	}
	for _, code := range codes {
		if err := storage.AddInviteCode(db, code); err != nil {
			log.Fatal().Err(err).Msg("Failed to add invite code")
		}
	}
}

func adminToken() string {
	priv, err := jwk.ParseKey([]byte(testdata.PrivateKeyPEM), jwk.WithPEM(true))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse private key")
	}

	token, err := jwt.NewBuilder().
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(24 * time.Hour)).
		Subject("manualtest").
		Claim("roles", "user admin").
		Build()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build admin token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), priv))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign admin token")
	}
	return string(signed)
}
