package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/cache"
	"wannagonna/internal/events"
	"wannagonna/internal/models"
	"wannagonna/internal/repositories"
	"wannagonna/internal/store"
)

// fakeRemote answers findUserByCode from a code table and records every call.
type fakeRemote struct {
	mu    sync.Mutex
	users map[string]string
	fail  map[string]error
	calls []remoteCall
}

type remoteCall struct {
	Name    string
	Payload interface{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{users: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeRemote) Call(ctx context.Context, name string, payload interface{}, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{Name: name, Payload: payload})

	if err := f.fail[name]; err != nil {
		return err
	}
	if name != callableFindUserByCode || result == nil {
		return nil
	}

	resp := map[string]interface{}{"user": nil}
	if id, ok := f.users[payload.(findUserByCodeRequest).Code]; ok {
		resp["user"] = map[string]string{"id": id}
	}
	raw, _ := json.Marshal(resp)
	return json.Unmarshal(raw, result)
}

func (f *fakeRemote) callsTo(name string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c.Payload)
		}
	}
	return out
}

var errRemoteDown = errors.New("remote down")

type testEnv struct {
	ds      *store.MemoryStore
	blobs   *store.MemoryBlobStore
	remote  *fakeRemote
	cache   cache.Cache
	bus     events.EventBus
	repos   *repositories.Collection
	catalog CatalogService
	ledger  LedgerService
	grants  GrantService
	refs    ReferralService
	rules   RuleDispatcher
	notify  NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	env := &testEnv{
		ds:     store.NewMemoryStore(),
		blobs:  store.NewMemoryBlobStore("https://blobs.test"),
		remote: newFakeRemote(),
		cache: cache.NewMemoryCache(&cache.Config{
			TTL:             time.Hour,
			MaxKeys:         1000,
			EvictionEnabled: true,
		}, logger),
		bus: events.NewInMemoryEventBus(&events.EventBusConfig{
			BufferSize:     100,
			WorkerCount:    2,
			HandlerTimeout: 5 * time.Second,
		}, logger),
	}

	repos, err := repositories.NewCollection(env.ds, logger)
	require.NoError(t, err)
	env.repos = repos

	env.catalog = NewCatalogService(repos.Catalog, env.cache, logger, nil)
	env.ledger = NewLedgerService(repos.XPHistory, logger)
	env.grants = NewGrantService(env.catalog, repos.Member, env.ledger, env.bus, logger)
	env.refs = NewReferralService(env.remote, env.grants, env.catalog, env.bus, logger, "buddyBuilder")
	env.rules = NewRuleDispatcher(env.grants, env.refs, repos.Organization, logger, "profileComplete")
	env.notify = NewNotificationService(env.remote, logger, true)

	require.NoError(t, env.notify.Subscribe(env.bus))
	require.NoError(t, env.bus.Start(context.Background()))
	t.Cleanup(func() { _ = env.bus.Stop(context.Background()) })

	seedCatalog(t, env.ds)
	return env
}

// drain stops the bus once every queued event has been handled.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.bus.Stop(ctx))
}

func (e *testEnv) put(t *testing.T, path string, doc store.Document) {
	t.Helper()
	require.NoError(t, e.ds.SetDoc(context.Background(), path, doc))
}

func (e *testEnv) member(t *testing.T, id string) store.Document {
	t.Helper()
	doc, err := e.ds.GetDoc(context.Background(), "members/"+id)
	require.NoError(t, err)
	return doc
}

func (e *testEnv) history(t *testing.T, id string) []*models.XPHistoryEntry {
	t.Helper()
	entries, err := e.ledger.List(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func seedCatalog(t *testing.T, ds store.DocumentStore) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]store.Document{
		"badges/sdg":                            {"title": "Sustainable Development Goals", "order": 1},
		"badges/sdg/badges/1":                   {"title": "No Poverty", "xp": 50},
		"badges/sdg/badges/7":                   {"title": "Affordable and Clean Energy", "xp": 50},
		"badges/continents":                     {"title": "Continents", "order": 2},
		"badges/continents/badges/africa":       {"title": "Africa", "xp": 30},
		"badges/continents/badges/europe":       {"title": "Europe", "xp": 30},
		"badges/activities":                     {"title": "Activities", "order": 3},
		"badges/activities/badges/firstLocal":   {"title": "First Local", "xp": 20},
		"badges/activities/badges/firstOnline":  {"title": "First Online", "xp": 15},
		"badges/activities/badges/firstEvent":   {"title": "First Event", "xp": 0},
		"badges/members":                        {"title": "Members", "order": 4},
		"badges/members/badges/profileComplete": {"title": "Profile Complete", "xp": 10},
		"badges/members/badges/buddyBuilder":    {"title": "Buddy Builder", "xp": 25},
	}
	for path, doc := range docs {
		require.NoError(t, ds.SetDoc(ctx, path, doc))
	}
}
