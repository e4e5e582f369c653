// Package paramstore resolves the coordinates of the remote invite code
// registry from an external parameter source.
package paramstore

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/charleshuang3/membergate/internal/metrics"
)

var (
	logger = log.With().Str("component", "paramstore").Logger()
)

const (
	remoteConfigKey = "remote"
)

// RemoteConfig is what the gate needs to reach the registry.
type RemoteConfig struct {
	Endpoint   string
	Credential string
}

// Resolver resolves RemoteConfig and caches successful results. With a zero
// TTL the value lives until Invalidate or process exit, so rotated
// coordinates need a restart or an Invalidate call.
type Resolver struct {
	source         Source
	endpointName   string
	credentialName string
	ttl            time.Duration
	timeout        time.Duration

	cache *ristretto.Cache[string, RemoteConfig]
	group singleflight.Group
}

func NewResolver(source Source, cfg *Config) *Resolver {
	c, err := ristretto.NewCache(&ristretto.Config[string, RemoteConfig]{
		NumCounters:        100,
		MaxCost:            100,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create remote config cache")
	}

	timeout := cfg.timeout()
	if timeout <= 0 {
		timeout = defaultTimeoutMS * time.Millisecond
	}

	return &Resolver{
		source:         source,
		endpointName:   cfg.EndpointName,
		credentialName: cfg.CredentialName,
		ttl:            cfg.cacheTTL(),
		timeout:        timeout,
		cache:          c,
	}
}

// Resolve returns the registry coordinates, or false when they are not
// available. It never fails loudly: errors are logged and reported as
// unavailable.
func (r *Resolver) Resolve(ctx context.Context) (RemoteConfig, bool) {
	if r.endpointName == "" || r.credentialName == "" || r.source == nil {
		metrics.IncConfigResolution("unconfigured")
		return RemoteConfig{}, false
	}

	if rc, ok := r.cache.Get(remoteConfigKey); ok {
		metrics.IncConfigResolution("cached")
		return rc, true
	}

	v, _, _ := r.group.Do(remoteConfigKey, func() (any, error) {
		rc, ok := r.fetch(ctx)
		if ok {
			r.cache.SetWithTTL(remoteConfigKey, rc, 1, r.ttl)
			r.cache.Wait()
		}
		return resolved{rc, ok}, nil
	})

	res := v.(resolved)
	if res.ok {
		metrics.IncConfigResolution("resolved")
	} else {
		metrics.IncConfigResolution("unavailable")
	}
	return res.config, res.ok
}

type resolved struct {
	config RemoteConfig
	ok     bool
}

func (r *Resolver) fetch(ctx context.Context) (RemoteConfig, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params, err := r.source.GetParameters(ctx, []string{r.endpointName, r.credentialName})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get remote registry parameters")
		return RemoteConfig{}, false
	}

	rc := RemoteConfig{
		Endpoint:   strings.TrimSpace(params[r.endpointName]),
		Credential: strings.TrimSpace(params[r.credentialName]),
	}
	if rc.Endpoint == "" || rc.Credential == "" {
		logger.Warn().
			Bool("has_endpoint", rc.Endpoint != "").
			Bool("has_credential", rc.Credential != "").
			Msg("Remote registry parameters are incomplete")
		return RemoteConfig{}, false
	}

	return rc, true
}

// Invalidate drops the cached value so the next Resolve fetches again.
func (r *Resolver) Invalidate() {
	r.cache.Del(remoteConfigKey)
	r.cache.Wait()
}

func (r *Resolver) Close() {
	r.cache.Close()
}
