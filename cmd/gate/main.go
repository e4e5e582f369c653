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
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/membergate/internal/admission"
	"github.com/charleshuang3/membergate/internal/config"
	"github.com/charleshuang3/membergate/internal/handlers/presignup"
	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/paramstore"
	"github.com/charleshuang3/membergate/internal/registryclient"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	cfg := config.LoadGateConfig(*configPath)

	metrics.MustRegister()

	source, err := paramstore.NewSource(context.Background(), &cfg.Parameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create parameter source")
	}
	resolver := paramstore.NewResolver(source, &cfg.Parameters)
	defer resolver.Close()

	gate := admission.NewGate(resolver, registryclient.New(&http.Client{}), &cfg.Admission)

	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	presignup.New(gate, cfg.HookToken).RegisterHandlers(router.Group("/"))
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
	// SIGHUP drops the cached registry coordinates after a rotation.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range c {
		if sig == syscall.SIGHUP {
			log.Info().Msg("reloading registry coordinates")
			resolver.Invalidate()
			continue
		}
		break
	}

	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	srv.Shutdown(ctx)

	// let in-flight usage updates land before exit.
	gate.Wait()

	log.Info().Msg("shutting down")
}
