package entity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/folio/store"
)

var (
	superadmin = Principal{UserID: "root", Role: RoleSuperadmin}
	acmeAdmin  = Principal{UserID: "alice", Role: RoleOrgAdmin, OrganizationID: "acme"}
	acmeMember = Principal{UserID: "bob", Role: RoleOrgMember, OrganizationID: "acme"}
	otherAdmin = Principal{UserID: "carol", Role: RoleOrgAdmin, OrganizationID: "other"}
)

func eventType() EntityType {
	return EntityType{
		ID:         "event",
		Name:       "Event",
		PluralName: "Events",
		Sections:   []Section{{ID: "main", Label: "Main"}},
		Fields: []Field{
			{ID: "name", Label: "Name", Type: FieldText, Required: true, SectionID: "main"},
			{ID: "summary", Label: "Summary", Type: FieldTextarea},
			{ID: "capacity", Label: "Capacity", Type: FieldNumber},
			{ID: "free", Label: "Free", Type: FieldBoolean},
			{ID: "tags", Label: "Tags", Type: FieldTags},
			{ID: "category", Label: "Category", Type: FieldSelect, Options: []string{"talk", "workshop"}},
			{ID: "site", Label: "Web site", Type: FieldURL},
			{ID: "a", Label: "A", Type: FieldNumber},
			{ID: "b", Label: "B", Type: FieldNumber},
		},
		DefaultVisibility: VisibilityPublic,
		Active:            true,
	}
}

type testEnv struct {
	s     *Store
	mem   *store.Memory
	clock *clock.Mock
	inv   *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	mem := store.NewMemory()
	env := &testEnv{
		s:     New(mem),
		mem:   mem,
		clock: clock.NewMock(),
		inv:   &recorder{},
	}
	env.clock.Add(1000 * time.Hour)
	env.s.Clock = env.clock
	env.s.Invalidator = env.inv
	_, err := env.s.PutType(context.Background(), superadmin, eventType())
	require.NoError(t, err)
	env.inv.reset()
	return env
}

func (env *testEnv) create(t *testing.T, actor Principal, org string, data Data) *Entity {
	e, err := env.s.Create(context.Background(), actor, CreateInput{
		EntityTypeID:   "event",
		OrganizationID: org,
		Data:           data,
	})
	require.NoError(t, err)
	return e
}

// recorder is an Invalidator which remembers what it was told.
type recorder struct {
	m       sync.Mutex
	changes [][2]*Entity
	types   []string
	err     error
}

func (r *recorder) EntityChanged(ctx context.Context, before, after *Entity) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.changes = append(r.changes, [2]*Entity{before, after})
	return r.err
}

func (r *recorder) TypeChanged(ctx context.Context, typeID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.types = append(r.types, typeID)
	return r.err
}

func (r *recorder) reset() {
	r.m.Lock()
	defer r.m.Unlock()
	r.changes = nil
	r.types = nil
}
