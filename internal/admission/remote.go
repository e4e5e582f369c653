package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
)

// RemoteValidator evaluates a code against the authoritative registry.
type RemoteValidator struct {
	registry Registry
	timeout  time.Duration
	now      func() time.Time
}

func NewRemoteValidator(registry Registry, timeout time.Duration) *RemoteValidator {
	return &RemoteValidator{
		registry: registry,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Validate never returns an infrastructure problem as a rejection: any registry
// error, and any panic inside the registry client, is Indeterminate.
func (v *RemoteValidator) Validate(ctx context.Context, remote paramstore.RemoteConfig, code string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = indeterminate(fmt.Errorf("registry lookup panicked: %v", r))
		}
		metrics.ObserveRemoteLookup(res.Outcome.String(), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	record, err := v.registry.FindByCode(ctx, remote, code)
	if err != nil {
		return indeterminate(err)
	}
	return Evaluate(record, v.now())
}

// Evaluate applies the eligibility rules in order. A nil record means the code
// does not exist.
func Evaluate(record *models.InviteCode, now time.Time) Result {
	switch {
	case record == nil:
		return reject(ReasonCodeInvalid)
	case !record.IsActive:
		return reject(ReasonCodeDeactivated)
	case record.ExpiredAt(now):
		return reject(ReasonCodeExpired)
	case record.Exhausted():
		return reject(ReasonUsageLimitReached)
	default:
		return accept(record.ID, record.UsageCount)
	}
}
