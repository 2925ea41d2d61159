package bundle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/folio/blobcache"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/store"
)

var (
	superadmin = entity.Principal{UserID: "root", Role: entity.RoleSuperadmin}
	acmeAdmin  = entity.Principal{UserID: "alice", Role: entity.RoleOrgAdmin, OrganizationID: "acme"}
)

type fixture struct {
	mem      *store.Memory
	flaky    *flaky
	entities *entity.Store
	builder  *Builder
	clock    *clock.Mock
}

// flaky fails every Get while fail is set, every Put of a key beginning
// with failPut, and every Delete of a key ending with failDelete.
type flaky struct {
	store.Store
	fail int32

	m          sync.Mutex
	failPut    string
	failDelete string
}

func (f *flaky) failDeletes(suffix string) {
	f.m.Lock()
	f.failDelete = suffix
	f.m.Unlock()
}

func (f *flaky) Delete(ctx context.Context, key string) error {
	f.m.Lock()
	suffix := f.failDelete
	f.m.Unlock()
	if suffix != "" && strings.HasSuffix(key, suffix) {
		return errors.New("connection reset")
	}
	return f.Store.Delete(ctx, key)
}

func (f *flaky) failPuts(prefix string) {
	f.m.Lock()
	f.failPut = prefix
	f.m.Unlock()
}

func (f *flaky) Put(ctx context.Context, key string, data []byte, meta *store.Metadata) error {
	f.m.Lock()
	prefix := f.failPut
	f.m.Unlock()
	if prefix != "" && strings.HasPrefix(key, prefix) {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, data, meta)
}

func (f *flaky) Get(ctx context.Context, key string) ([]byte, error) {
	if atomic.LoadInt32(&f.fail) == 1 {
		return nil, errors.New("connection refused")
	}
	return f.Store.Get(ctx, key)
}

func newFixture(t *testing.T) *fixture {
	mem := store.NewMemory()
	fx := &fixture{mem: mem, flaky: &flaky{Store: mem}, clock: clock.NewMock()}
	fx.clock.Add(1000 * time.Hour)
	fx.entities = entity.New(fx.flaky)
	fx.entities.Clock = fx.clock
	fx.builder = NewBuilder(fx.entities, fx.flaky)
	fx.builder.Clock = fx.clock
	fx.entities.Invalidator = fx.builder
	for _, id := range []string{"event", "venue"} {
		_, err := fx.entities.PutType(context.Background(), superadmin, entity.EntityType{
			ID:                id,
			Name:              id,
			PluralName:        id + "s",
			Fields:            []entity.Field{{ID: "name", Label: "Name", Type: entity.FieldText, Required: true}},
			DefaultVisibility: entity.VisibilityPublic,
			Active:            true,
		})
		require.NoError(t, err)
	}
	_, err := fx.builder.RebuildStale(context.Background())
	require.NoError(t, err)
	return fx
}

// publish creates an entity and moves it to the given status.
func (fx *fixture) publish(t *testing.T, typeID, org, name string, vis entity.Visibility, status entity.Status) *entity.Entity {
	ctx := context.Background()
	fx.clock.Add(time.Minute)
	e, err := fx.entities.Create(ctx, superadmin, entity.CreateInput{
		EntityTypeID:   typeID,
		OrganizationID: org,
		Data:           entity.Data{"name": entity.StringValue(name)},
		Visibility:     vis,
	})
	require.NoError(t, err)
	var path []entity.Action
	switch status {
	case entity.StatusPending:
		path = []entity.Action{entity.ActionSubmit}
	case entity.StatusPublished:
		path = []entity.Action{entity.ActionSubmit, entity.ActionApprove}
	case entity.StatusArchived:
		path = []entity.Action{entity.ActionArchive}
	}
	for _, a := range path {
		e, err = fx.entities.Transition(ctx, superadmin, e.ID, a, "")
		require.NoError(t, err)
	}
	return e
}

func ids(b *Bundle) []string {
	var result []string
	for _, r := range b.Entities {
		result = append(result, r.ID)
	}
	return result
}

func TestPublishThenArchive(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := fx.publish(t, "event", "acme", "Foo", entity.VisibilityPublic, entity.StatusDraft)
	assert.Equal(t, 1, e.Version)

	e, err := fx.entities.Transition(ctx, acmeAdmin, e.ID, entity.ActionSubmit, "")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Version)
	e, err = fx.entities.Transition(ctx, superadmin, e.ID, entity.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Version)

	b, err := fx.builder.BuildBundle(ctx, "event", scope.Public{})
	require.NoError(t, err)
	require.Equal(t, []string{e.ID}, ids(b))
	assert.Equal(t, "Foo", b.Entities[0].Data.String("name"))
	assert.Equal(t, 3, b.Entities[0].Version)

	e, err = fx.entities.Transition(ctx, acmeAdmin, e.ID, entity.ActionArchive, "")
	require.NoError(t, err)
	assert.Equal(t, 4, e.Version)

	b, err = fx.builder.BuildBundle(ctx, "event", scope.Public{})
	require.NoError(t, err)
	assert.Empty(t, b.Entities)
	assert.Equal(t, 0, b.EntityCount)
}

func TestFingerprintIsStable(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.publish(t, "event", "acme", "Foo", entity.VisibilityPublic, entity.StatusPublished)
	fx.publish(t, "event", "acme", "Bar", entity.VisibilityPublic, entity.StatusPublished)

	first, err := fx.builder.BuildBundle(ctx, "event", scope.Public{})
	require.NoError(t, err)
	fx.clock.Add(time.Hour)
	second, err := fx.builder.BuildBundle(ctx, "event", scope.Public{})
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.GeneratedAt, second.GeneratedAt)

	m, err := fx.mem.Head(ctx, keys.Bundle(scope.Public{}, "event"))
	require.NoError(t, err)
	assert.Equal(t, second.Fingerprint, m.ETag)

	m1, err := fx.builder.BuildManifest(ctx, scope.Public{})
	require.NoError(t, err)
	m2, err := fx.builder.BuildManifest(ctx, scope.Public{})
	require.NoError(t, err)
	assert.Equal(t, m1.Fingerprint, m2.Fingerprint)

	// the same entities in another scope give a different fingerprint
	other, err := fx.builder.BuildBundle(ctx, "event", scope.Platform{})
	require.NoError(t, err)
	assert.Equal(t, first.Entities, other.Entities)
	assert.NotEqual(t, first.Fingerprint, other.Fingerprint)

	// and any change gives a new one
	fx.publish(t, "event", "acme", "Baz", entity.VisibilityPublic, entity.StatusPublished)
	third, err := fx.builder.BuildBundle(ctx, "event", scope.Public{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestScopeMembership(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	pub := fx.publish(t, "event", "acme", "public", entity.VisibilityPublic, entity.StatusPublished)
	plat := fx.publish(t, "event", "other", "platform", entity.VisibilityPlatform, entity.StatusPublished)
	priv := fx.publish(t, "event", "acme", "private", entity.VisibilityPrivate, entity.StatusPublished)
	draft := fx.publish(t, "event", "acme", "draft", entity.VisibilityPublic, entity.StatusDraft)
	pending := fx.publish(t, "event", "acme", "pending", entity.VisibilityPublic, entity.StatusPending)
	archived := fx.publish(t, "event", "acme", "archived", entity.VisibilityPublic, entity.StatusArchived)
	otherDraft := fx.publish(t, "event", "other", "other draft", entity.VisibilityPublic, entity.StatusDraft)
	fx.publish(t, "venue", "acme", "venue", entity.VisibilityPublic, entity.StatusPublished)

	var table = []struct {
		s        scope.Scope
		expected []*entity.Entity
	}{
		{scope.Public{}, []*entity.Entity{pub}},
		{scope.Platform{}, []*entity.Entity{pub, plat}},
		{scope.MembershipTier{TierID: "gold"}, []*entity.Entity{pub, plat}},
		{scope.OrgMember{OrgID: "acme"}, []*entity.Entity{pub, plat, priv, draft, pending}},
		{scope.OrgAdmin{OrgID: "acme"}, []*entity.Entity{pub, plat, priv, draft, pending, archived}},
		{scope.OrgAdmin{OrgID: "other"}, []*entity.Entity{pub, plat, otherDraft}},
	}
	for _, row := range table {
		b, err := fx.builder.BuildBundle(ctx, "event", row.s)
		require.NoError(t, err)
		var expected []string
		for _, e := range row.expected {
			expected = append(expected, e.ID)
		}
		assert.ElementsMatch(t, expected, ids(b), "scope %s", row.s)
		assert.Equal(t, len(expected), b.EntityCount)
		assert.IsIncreasing(t, ids(b), "scope %s not sorted", row.s)

		m, err := fx.builder.BuildManifest(ctx, row.s)
		require.NoError(t, err)
		summary, ok := m.Type("event")
		require.True(t, ok)
		assert.Equal(t, b.EntityCount, summary.EntityCount, "manifest count for %s", row.s)
		assert.Equal(t, b.Fingerprint, summary.BundleFingerprint)
	}
}

func TestStaleMarkers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	stale, err := fx.builder.Stale(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// a draft only shows in its organization's scopes
	e := fx.publish(t, "event", "acme", "Foo", entity.VisibilityPublic, entity.StatusDraft)
	stale, err = fx.builder.Stale(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Target{
		{scope.OrgMember{OrgID: "acme"}, "event"},
		{scope.OrgAdmin{OrgID: "acme"}, "event"},
	}, stale)

	report, err := fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Bundles, 2)
	assert.ElementsMatch(t, []scope.Scope{scope.OrgMember{OrgID: "acme"}, scope.OrgAdmin{OrgID: "acme"}}, report.Manifests)
	stale, _ = fx.builder.Stale(ctx)
	assert.Empty(t, stale)

	// publishing touches the public scopes and every scope with a manifest
	_, err = fx.builder.BuildManifest(ctx, scope.OrgMember{OrgID: "other"})
	require.NoError(t, err)
	for _, a := range []entity.Action{entity.ActionSubmit, entity.ActionApprove} {
		_, err = fx.entities.Transition(ctx, superadmin, e.ID, a, "")
		require.NoError(t, err)
	}
	stale, _ = fx.builder.Stale(ctx)
	var scopes []string
	for _, target := range stale {
		assert.Equal(t, "event", target.EntityTypeID)
		scopes = append(scopes, target.Scope.String())
	}
	assert.ElementsMatch(t, []string{"public", "platform", "org:acme:member", "org:acme:admin", "org:other:member"}, scopes)

	_, err = fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	m, err := fx.builder.BuildManifest(ctx, scope.OrgMember{OrgID: "other"})
	require.NoError(t, err)
	summary, _ := m.Type("event")
	assert.Equal(t, 1, summary.EntityCount)
}

func TestRebuildAfterFailedBundlePut(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := fx.publish(t, "event", "", "Foo", entity.VisibilityPublic, entity.StatusPublished)

	fx.flaky.failPuts(keys.BundlePrefix)
	_, err := fx.builder.RebuildStale(ctx)
	assert.True(t, failure.StorageUnavailable.Has(err), "received %v", err)
	stale, err := fx.builder.Stale(ctx)
	require.NoError(t, err)
	assert.Contains(t, stale, Target{scope.Public{}, "event"})

	fx.flaky.failPuts("")
	_, err = fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	stale, _ = fx.builder.Stale(ctx)
	assert.Empty(t, stale)
	var m Manifest
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Manifest(scope.Public{}), &m))
	summary, _ := m.Type("event")
	assert.Equal(t, 1, summary.EntityCount)
	var b Bundle
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Bundle(scope.Public{}, "event"), &b))
	assert.Equal(t, []string{e.ID}, ids(&b))
}

func TestRebuildAfterFailedManifestPut(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.publish(t, "event", "", "Foo", entity.VisibilityPublic, entity.StatusPublished)

	fx.flaky.failPuts(keys.ManifestPrefix)
	_, err := fx.builder.RebuildStale(ctx)
	assert.True(t, failure.StorageUnavailable.Has(err), "received %v", err)
	stale, _ := fx.builder.Stale(ctx)
	assert.Contains(t, stale, Target{scope.Public{}, "event"})

	fx.flaky.failPuts("")
	_, err = fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Manifest(scope.Public{}), &m))
	summary, _ := m.Type("event")
	assert.Equal(t, 1, summary.EntityCount)
}

func TestInterruptedSuperDeleteLeavesBundles(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := fx.publish(t, "event", "", "Foo", entity.VisibilityPublic, entity.StatusPublished)
	_, err := fx.builder.RebuildStale(ctx)
	require.NoError(t, err)

	fx.flaky.failDeletes("/latest.json")
	_, err = fx.entities.Transition(ctx, superadmin, e.ID, entity.ActionSuperDelete, "")
	assert.True(t, failure.StorageUnavailable.Has(err), "received %v", err)
	fx.flaky.failDeletes("")
	gone, err := fx.entities.Transition(ctx, superadmin, e.ID, entity.ActionSuperDelete, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDeleted, gone.Status)

	_, err = fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	var b Bundle
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Bundle(scope.Public{}, "event"), &b))
	assert.Empty(t, ids(&b))
	var m Manifest
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Manifest(scope.Public{}), &m))
	summary, _ := m.Type("event")
	assert.Equal(t, 0, summary.EntityCount)
}

func TestManifestReusesBundle(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	// a stored bundle which is not marked stale is trusted
	err := store.PutJSON(ctx, fx.mem, keys.Bundle(scope.Public{}, "event"), Bundle{
		EntityTypeID: "event",
		Fingerprint:  "stored",
		EntityCount:  7,
	}, nil)
	require.NoError(t, err)
	m, err := fx.builder.BuildManifest(ctx, scope.Public{})
	require.NoError(t, err)
	summary, _ := m.Type("event")
	assert.Equal(t, "stored", summary.BundleFingerprint)
	assert.Equal(t, 7, summary.EntityCount)

	// once marked it is rebuilt
	require.NoError(t, fx.builder.mark(ctx, scope.Public{}, "event"))
	m, err = fx.builder.BuildManifest(ctx, scope.Public{})
	require.NoError(t, err)
	summary, _ = m.Type("event")
	assert.NotEqual(t, "stored", summary.BundleFingerprint)
	assert.Equal(t, 0, summary.EntityCount)
	_, err = fx.mem.Head(ctx, keys.Stale(scope.Public{}, "event"))
	assert.True(t, store.IsNotExist(err))
}

func TestManifestContents(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.publish(t, "event", "acme", "one", entity.VisibilityPublic, entity.StatusPublished)
	last := fx.publish(t, "event", "acme", "two", entity.VisibilityPublic, entity.StatusPublished)

	m, err := fx.builder.BuildManifest(ctx, scope.Public{})
	require.NoError(t, err)
	require.Len(t, m.EntityTypes, 2)
	assert.Equal(t, "event", m.EntityTypes[0].ID)
	assert.Equal(t, "venue", m.EntityTypes[1].ID)
	assert.Equal(t, 2, m.EntityTypes[0].EntityCount)
	assert.True(t, last.UpdatedAt.Equal(m.EntityTypes[0].LastUpdated))
	assert.True(t, m.EntityTypes[1].LastUpdated.IsZero())
	assert.Equal(t, "events", m.EntityTypes[0].PluralName)

	// deactivating a type drops it from the manifest
	venue, err := fx.entities.GetType(ctx, "venue")
	require.NoError(t, err)
	venue.Active = false
	_, err = fx.entities.PutType(ctx, superadmin, *venue)
	require.NoError(t, err)
	_, err = fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	var stored Manifest
	require.NoError(t, store.GetJSON(ctx, fx.mem, keys.Manifest(scope.Public{}), &stored))
	require.Len(t, stored.EntityTypes, 1)
	assert.NotEqual(t, m.Fingerprint, stored.Fingerprint)
}

func TestRebuildRemovesDeletedType(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.mem.Put(ctx, keys.Bundle(scope.Public{}, "gone"), []byte(`{}`), nil))
	require.NoError(t, fx.builder.mark(ctx, scope.Public{}, "gone"))
	report, err := fx.builder.RebuildStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Target{{scope.Public{}, "gone"}}, report.Removed)
	_, err = fx.mem.Get(ctx, keys.Bundle(scope.Public{}, "gone"))
	assert.True(t, store.IsNotExist(err))
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := fx.publish(t, "event", "acme", "Foo", entity.VisibilityPublic, entity.StatusPublished)
	cache := blobcache.New(store.NewMemory(), 1<<20)
	r := NewReader(fx.builder, fx.flaky, cache)

	// tier scopes have no manifest until someone asks
	gold := scope.MembershipTier{TierID: "gold"}
	m, err := r.Manifest(ctx, gold)
	require.NoError(t, err)
	assert.Equal(t, "tier:gold", m.Scope)
	_, err = fx.mem.Head(ctx, keys.Manifest(gold))
	assert.NoError(t, err)

	b, err := r.Bundle(ctx, "event", gold)
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, ids(b))

	_, err = r.Bundle(ctx, "nothing", gold)
	assert.True(t, failure.NotFound.Has(err), "got %v", err)
	_, err = r.Bundle(ctx, "../x", gold)
	assert.True(t, failure.NotFound.Has(err), "got %v", err)

	// with the store down the cached copies are served
	atomic.StoreInt32(&fx.flaky.fail, 1)
	m2, err := r.Manifest(ctx, gold)
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint, m2.Fingerprint)
	b2, err := r.Bundle(ctx, "event", gold)
	require.NoError(t, err)
	assert.Equal(t, b.Fingerprint, b2.Fingerprint)

	// and nothing cached is an error
	_, err = r.Manifest(ctx, scope.Platform{})
	assert.True(t, failure.StorageUnavailable.Has(err), "got %v", err)

	// without a cache there is no fallback
	bare := NewReader(fx.builder, fx.flaky, nil)
	_, err = bare.Manifest(ctx, gold)
	assert.True(t, failure.StorageUnavailable.Has(err), "got %v", err)
}
