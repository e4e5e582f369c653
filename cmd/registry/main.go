package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/membergate/internal/config"
	"github.com/charleshuang3/membergate/internal/gormw"
	"github.com/charleshuang3/membergate/internal/handlers/firewall"
	"github.com/charleshuang3/membergate/internal/handlers/registry"
	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/storage"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	cfg := config.LoadRegistryConfig(*configPath)

	metrics.MustRegister()

	// cron schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	storage.RegisterExpiredInviteCodesDeactivator(scheduler, db)

	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	fw := firewall.New(&cfg.Firewall)
	router.Use(fw.Middleware())

	reg := registry.New(&cfg.Registry, db)
	reg.RegisterHandlers(router.Group("/"))
	fw.RegisterHandlers(router.Group("/admin/firewall", reg.AdminAuth()))

	router.GET("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	go func() {
		log.Info().Msgf("start server at %q", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	srv.Shutdown(ctx)

	log.Info().Msg("shutting down")
}
