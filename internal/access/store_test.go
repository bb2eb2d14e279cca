package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher is a scriptable ClientFetcher.
type fakeFetcher struct {
	records []ClientRecord
	err     error
	calls   int
}

func (f *fakeFetcher) FetchClients(context.Context) ([]ClientRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func TestStoreMergeRemoteWins(t *testing.T) {
	static := []ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
		{ClientID: "client-b", Active: true, Rules: []string{"billing:*"}},
	}
	fetcher := &fakeFetcher{records: []ClientRecord{
		{ClientID: "client-b", Active: false, Rules: []string{"billing:view"}},
		{ClientID: "client-c", Active: true, Rules: []string{"*:*"}},
	}}

	store := NewStore(static, fetcher)
	require.NoError(t, store.Reload(context.Background()))
	assert.Equal(t, 3, store.Len())

	// Static-only entry survives.
	cfg, ok := store.Get(context.Background(), "client-a")
	require.True(t, ok)
	assert.True(t, cfg.Active)

	// Remote overwrote the conflicting static record.
	cfg, ok = store.Get(context.Background(), "client-b")
	require.True(t, ok)
	assert.False(t, cfg.Active)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "billing:view", cfg.Rules[0].Raw)

	// Remote-only entry present.
	_, ok = store.Get(context.Background(), "client-c")
	assert.True(t, ok)
}

func TestStoreRulesParsedAtLoadTime(t *testing.T) {
	fetcher := &fakeFetcher{records: []ClientRecord{
		{ClientID: "bad", Active: true, Rules: []string{"not-a-rule"}},
	}}

	store := NewStore(nil, fetcher)
	err := store.Reload(context.Background())
	assert.ErrorIs(t, err, ErrMalformedRule)
}

func TestStoreLastKnownGoodOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{records: []ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
	}}
	store := NewStore(nil, fetcher, WithReloadInterval(time.Nanosecond))
	require.NoError(t, store.Reload(context.Background()))

	// Registry goes down; the previous merge keeps serving.
	fetcher.err = errors.New("connection refused")

	cfg, ok := store.Get(context.Background(), "client-a")
	require.True(t, ok)
	assert.Equal(t, "client-a", cfg.ClientID)
}

func TestStoreMissTriggersReload(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := NewStore(nil, fetcher, WithReloadInterval(time.Hour))

	// First miss merges; within the interval a second miss does not refetch.
	_, ok := store.Get(context.Background(), "unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, fetcher.calls)

	_, ok = store.Get(context.Background(), "unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, fetcher.calls)
}

func TestStoreInvalidate(t *testing.T) {
	fetcher := &fakeFetcher{records: []ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
		{ClientID: "client-b", Active: true, Rules: []string{"billing:*"}},
	}}
	store := NewStore(nil, fetcher, WithReloadInterval(time.Hour))
	require.NoError(t, store.Reload(context.Background()))
	callsAfterLoad := fetcher.calls

	store.Invalidate("client-a")
	assert.Equal(t, 1, store.Len())

	// The invalidated id re-merges immediately despite the long interval.
	_, ok := store.Get(context.Background(), "client-a")
	assert.True(t, ok)
	assert.Greater(t, fetcher.calls, callsAfterLoad)

	// Unrelated entries were never dropped.
	_, ok = store.Get(context.Background(), "client-b")
	assert.True(t, ok)
}

func TestStoreInvalidateUnknownIDIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{records: []ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
	}}
	store := NewStore(nil, fetcher)
	require.NoError(t, store.Reload(context.Background()))

	store.Invalidate("never-seen")
	assert.Equal(t, 1, store.Len())
}

func TestStoreStaticOnly(t *testing.T) {
	static := []ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
	}
	store := NewStore(static, nil)

	cfg, ok := store.Get(context.Background(), "client-a")
	require.True(t, ok)
	assert.True(t, cfg.Active)
}

func TestStoreReplaceStatic(t *testing.T) {
	store := NewStore([]ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
	}, nil)
	require.NoError(t, store.Reload(context.Background()))

	store.ReplaceStatic([]ClientRecord{
		{ClientID: "client-b", Active: true, Rules: []string{"billing:*"}},
	})

	// Entries are untouched until the next merge.
	_, ok := store.Get(context.Background(), "client-a")
	assert.True(t, ok)

	require.NoError(t, store.Reload(context.Background()))
	_, ok = store.Get(context.Background(), "client-a")
	assert.False(t, ok)
	cfg, ok := store.Get(context.Background(), "client-b")
	require.True(t, ok)
	assert.Equal(t, "client-b", cfg.ClientID)
}
