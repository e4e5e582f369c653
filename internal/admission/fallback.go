package admission

import (
	"os"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

const DefaultFallbackCodesEnv = "FALLBACK_INVITE_CODES"

// StaticValidator checks codes against an operator supplied allow-list. It is
// the degraded path: nothing it admits is counted against any usage limit.
type StaticValidator struct {
	lookup func() string
}

// NewStaticValidator reads the comma separated list from the named environment
// variable on every call, so edits take effect without a restart.
func NewStaticValidator(envName string) *StaticValidator {
	if envName == "" {
		envName = DefaultFallbackCodesEnv
	}
	return &StaticValidator{
		lookup: func() string { return os.Getenv(envName) },
	}
}

func (v *StaticValidator) Validate(code string) Result {
	codes := parseCodeList(v.lookup())
	if codes.Empty() {
		return reject(ReasonNoCodesConfigured)
	}
	// exact and case-sensitive
	if !codes.Contains(code) {
		return reject(ReasonCodeInvalid)
	}
	return Result{Outcome: Accept}
}

func parseCodeList(raw string) *set.Set[string] {
	codes := set.New[string](0)
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes.Insert(c)
		}
	}
	return codes
}
