package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/paramstore"
	"github.com/charleshuang3/membergate/internal/registryclient"
)

const maxUsageUpdateAttempts = 3

var errUsageConflict = errors.New("usage count kept changing")

// UsageUpdater bumps usage counts after a remote admission. Updates run in the
// background and their failures are only logged.
type UsageUpdater struct {
	registry Registry
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewUsageUpdater(registry Registry, timeout time.Duration) *UsageUpdater {
	return &UsageUpdater{
		registry: registry,
		timeout:  timeout,
	}
}

// Schedule starts an update setting the usage count of codeID to observed+1.
// The update outlives ctx cancellation but not the updater's own timeout.
func (u *UsageUpdater) Schedule(ctx context.Context, remote paramstore.RemoteConfig, codeID string, observed uint) {
	ctx = context.WithoutCancel(ctx)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.IncUsageUpdate("failed")
				logger.Error().Str("code_id", codeID).Msgf("Usage update panicked: %v", r)
			}
		}()

		// failures are logged and counted inside update.
		u.update(ctx, remote, codeID, observed)
	}()
}

// update writes observed+1 conditioned on observed. When another signup got
// there first it retries on top of the count the registry reports.
func (u *UsageUpdater) update(ctx context.Context, remote paramstore.RemoteConfig, codeID string, observed uint) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	expected := observed
	for attempt := 1; attempt <= maxUsageUpdateAttempts; attempt++ {
		err := u.registry.SetUsageCount(ctx, remote, codeID, &expected, expected+1)
		if err == nil {
			metrics.IncUsageUpdate("ok")
			return nil
		}

		var conflict *registryclient.ConflictError
		if !errors.As(err, &conflict) {
			metrics.IncUsageUpdate("failed")
			logger.Error().Err(err).
				Str("code_id", codeID).
				Uint("observed", observed).
				Msg("Failed to update invite code usage count")
			return err
		}

		logger.Warn().
			Str("code_id", codeID).
			Uint("expected", expected).
			Uint("current", conflict.Current).
			Int("attempt", attempt).
			Msg("Invite code usage count changed concurrently, retrying")
		expected = conflict.Current
	}

	metrics.IncUsageUpdate("conflict")
	logger.Error().
		Str("code_id", codeID).
		Uint("observed", observed).
		Msg("Gave up updating invite code usage count")
	return fmt.Errorf("code %s: %w", codeID, errUsageConflict)
}

// Wait blocks until every scheduled update has finished.
func (u *UsageUpdater) Wait() {
	u.wg.Wait()
}
