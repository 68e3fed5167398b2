package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet/wallettest"
)

type memoryCacheRepo struct {
	mu         sync.Mutex
	entries    map[string][]byte
	generation int64
	failDelete bool
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete {
		return errors.New("cache unavailable")
	}
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.entries {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(r.entries, key)
		}
	}
	return nil
}

func (r *memoryCacheRepo) Generation(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation, nil
}

func (r *memoryCacheRepo) AdvanceGeneration(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	return r.generation, nil
}

func (r *memoryCacheRepo) setFailDelete(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failDelete = fail
}

func (r *memoryCacheRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

type fakeActions struct {
	mu      sync.Mutex
	records []models.LedgerAction
}

func (f *fakeActions) Record(_ context.Context, action *models.LedgerAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *action)
	return nil
}

func (f *fakeActions) last() models.LedgerAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[len(f.records)-1]
}

func sessionFor(s *wallettest.Signer) *models.Session {
	return &models.Session{ID: "session-" + s.Address().Hex(), Address: s.Address(), Signer: s}
}

func testCID(t *testing.T, seed string) string {
	t.Helper()
	sum, err := multihash.Sum([]byte(seed), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum).String()
}
