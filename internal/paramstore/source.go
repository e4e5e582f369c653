package paramstore

import (
	"context"
	"fmt"
)

// Source fetches named parameters in one batch. Names that do not exist are
// missing from the result, that is not an error.
type Source interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

// StaticSource serves parameters from memory.
type StaticSource map[string]string

func (s StaticSource) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	res := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := s[name]; ok {
			res[name] = v
		}
	}
	return res, nil
}

// NewSource builds the Source selected by cfg.Provider.
func NewSource(ctx context.Context, cfg *Config) (Source, error) {
	switch cfg.Provider {
	case ProviderSSM:
		return NewSSMSource(ctx, cfg)
	case ProviderStatic:
		return StaticSource(cfg.Static), nil
	default:
		return nil, fmt.Errorf("unsupported parameter provider %q", cfg.Provider)
	}
}
