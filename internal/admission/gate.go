// Package admission decides whether a signup attempt may proceed based on the
// invitation code it carries.
//
// The registry is authoritative: its business rejections are final. Only when
// the registry cannot be reached or is not configured does the gate fall back
// to a static allow-list.
package admission

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/membergate/internal/metrics"
	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
)

var (
	logger = log.With().Str("component", "admission").Logger()
)

const (
	// MetadataCodeKey is the per-request metadata key. It wins over the
	// profile attribute when both are present.
	MetadataCodeKey = "inviteCode"
	// AttributeCodeKey is the user profile attribute holding the code.
	AttributeCodeKey = "custom:inviteCode"
)

// ConfigResolver supplies registry coordinates, false means unavailable.
type ConfigResolver interface {
	Resolve(ctx context.Context) (paramstore.RemoteConfig, bool)
}

// Registry is the remote invite code registry.
type Registry interface {
	// FindByCode returns nil, nil when no record matches.
	FindByCode(ctx context.Context, remote paramstore.RemoteConfig, code string) (*models.InviteCode, error)
	SetUsageCount(ctx context.Context, remote paramstore.RemoteConfig, id string, expected *uint, next uint) error
}

type Source string

const (
	SourceNone     Source = "none"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Verdict is the decision for one signup attempt.
type Verdict struct {
	Admitted          bool
	Reason            string
	MatchedCodeID     string
	MatchedUsageCount uint
	Source            Source
}

type SignupRequest struct {
	Username       string
	UserPoolID     string
	UserAttributes map[string]string
	ClientMetadata map[string]string
}

// InviteCode returns the submitted code, or "" when none was submitted.
func (r *SignupRequest) InviteCode() string {
	if code := strings.TrimSpace(r.ClientMetadata[MetadataCodeKey]); code != "" {
		return code
	}
	return strings.TrimSpace(r.UserAttributes[AttributeCodeKey])
}

type Gate struct {
	resolver ConfigResolver
	remote   *RemoteValidator
	fallback *StaticValidator
	usage    *UsageUpdater
}

func NewGate(resolver ConfigResolver, registry Registry, conf *Config) *Gate {
	conf.ApplyDefaults()
	return &Gate{
		resolver: resolver,
		remote:   NewRemoteValidator(registry, conf.remoteTimeout()),
		fallback: NewStaticValidator(conf.FallbackCodesEnv),
		usage:    NewUsageUpdater(registry, conf.accountingTimeout()),
	}
}

// Admit decides one signup attempt. It never fails: infrastructure problems
// degrade to the fallback list and surface, at worst, as its rejection.
func (g *Gate) Admit(ctx context.Context, req *SignupRequest) Verdict {
	v := g.admit(ctx, req)
	metrics.ObserveVerdict(string(v.Source), v.Admitted)

	l := logger.Info()
	if !v.Admitted {
		l = logger.Warn()
	}
	l.Str("username", req.Username).
		Str("user_pool", req.UserPoolID).
		Str("source", string(v.Source)).
		Bool("admitted", v.Admitted).
		Str("reason", v.Reason).
		Msg("Admission decided")
	return v
}

func (g *Gate) admit(ctx context.Context, req *SignupRequest) Verdict {
	code := req.InviteCode()
	if code == "" {
		return Verdict{Reason: ReasonCodeRequired, Source: SourceNone}
	}

	if remote, ok := g.resolver.Resolve(ctx); ok {
		res := g.remote.Validate(ctx, remote, code)
		switch res.Outcome {
		case Reject:
			// final, a revoked code must not slip through the fallback list.
			return Verdict{Reason: res.Reason, Source: SourceRemote}
		case Accept:
			g.usage.Schedule(ctx, remote, res.CodeID, res.UsageCount)
			return Verdict{
				Admitted:          true,
				MatchedCodeID:     res.CodeID,
				MatchedUsageCount: res.UsageCount,
				Source:            SourceRemote,
			}
		default:
			logger.Warn().Err(res.Err).Msg("Registry lookup failed, using fallback codes")
		}
	}

	res := g.fallback.Validate(code)
	if res.Outcome != Accept {
		return Verdict{Reason: res.Reason, Source: SourceFallback}
	}

	// not counted against any code, keep a trail instead.
	metrics.IncFallbackAdmission()
	logger.Warn().
		Str("username", req.Username).
		Str("code", code).
		Msg("Signup admitted by fallback code, usage not recorded")
	return Verdict{Admitted: true, Source: SourceFallback}
}

// Wait blocks until pending usage updates finish.
func (g *Gate) Wait() {
	g.usage.Wait()
}
