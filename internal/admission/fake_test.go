package admission

import (
	"context"
	"sync"

	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
)

var testRemote = paramstore.RemoteConfig{
	Endpoint:   "https://registry.example.com",
	Credential: "test-api-key",
}

type fakeResolver struct {
	mu     sync.Mutex
	calls  int
	remote paramstore.RemoteConfig
	ok     bool
}

func (f *fakeResolver) Resolve(ctx context.Context) (paramstore.RemoteConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.remote, f.ok
}

func (f *fakeResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type setUsageCall struct {
	ID       string
	Expected uint
	Next     uint
}

type fakeRegistry struct {
	mu sync.Mutex

	record  *models.InviteCode
	findErr error
	// blocks FindByCode until the context is done
	hang        bool
	panicOnFind bool
	findCalls   int

	// setErrs are returned by successive SetUsageCount calls, nil after they run out.
	setErrs  []error
	setCalls []setUsageCall
}

func (f *fakeRegistry) FindByCode(ctx context.Context, remote paramstore.RemoteConfig, code string) (*models.InviteCode, error) {
	f.mu.Lock()
	f.findCalls++
	hang, panicOnFind := f.hang, f.panicOnFind
	f.mu.Unlock()

	if panicOnFind {
		panic("nil map in registry client")
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.record == nil {
		return nil, nil
	}
	rec := *f.record
	return &rec, nil
}

func (f *fakeRegistry) SetUsageCount(ctx context.Context, remote paramstore.RemoteConfig, id string, expected *uint, next uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := setUsageCall{ID: id, Next: next}
	if expected != nil {
		call.Expected = *expected
	}
	f.setCalls = append(f.setCalls, call)

	if len(f.setErrs) == 0 {
		return nil
	}
	err := f.setErrs[0]
	f.setErrs = f.setErrs[1:]
	return err
}

func (f *fakeRegistry) FindCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

func (f *fakeRegistry) SetCalls() []setUsageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setUsageCall(nil), f.setCalls...)
}

func uintPtr(v uint) *uint { return &v }
