package entity

import (
	"context"
	"sort"
	"time"

	"github.com/facebookgo/clock"
	raven "github.com/getsentry/raven-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/store"
)

// Store reads and writes entities and entity types kept in an object store.
// Set the exported fields before the Store is first used.
type Store struct {
	// Policy decides who may do what. New sets it to DefaultPolicy.
	Policy Policy

	// Invalidator, if not nil, is told about every change so derived
	// bundles can be marked for rebuilding.
	Invalidator Invalidator

	Clock clock.Clock
	Log   *zap.Logger

	s     store.Store
	stubs *lru.Cache[string, Stub] // stubs never change, so caching them is safe
	newid func() (string, error)
}

// DefaultStubCacheSize is the number of stubs kept in memory.
const DefaultStubCacheSize = 10000

// maximum number of random ids tried before giving up on a create
const maxIDAttempts = 10

// New returns a Store keeping its records in s.
func New(s store.Store) *Store {
	stubs, _ := lru.New[string, Stub](DefaultStubCacheSize)
	return &Store{
		Policy: DefaultPolicy{},
		Clock:  clock.New(),
		Log:    zap.NewNop(),
		s:      s,
		stubs:  stubs,
		newid:  randomid,
	}
}

// CreateInput holds the fields supplied when an entity is created.
type CreateInput struct {
	EntityTypeID   string
	OrganizationID string // empty for a global entity
	Data           Data
	Visibility     Visibility // empty means the type's default
	MembershipTier string
}

// Create makes a new draft entity at version 1. The stub is written first,
// then the snapshot, then the pointer.
func (s *Store) Create(ctx context.Context, actor Principal, in CreateInput) (*Entity, error) {
	if !keys.ValidID(in.EntityTypeID) {
		return nil, failure.Validation.New("entity type id %q is not valid", in.EntityTypeID)
	}
	if in.OrganizationID != "" && !scope.ValidID(in.OrganizationID) {
		return nil, failure.Validation.New("organization id %q is not valid", in.OrganizationID)
	}
	t, err := s.GetType(ctx, in.EntityTypeID)
	if failure.NotFound.Has(err) {
		return nil, failure.Validation.New("unknown entity type %q", in.EntityTypeID)
	} else if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, failure.Validation.New("entity type %s is not active", t.ID)
	}
	if !s.Policy.CanCreate(actor, t.ID, in.OrganizationID) {
		return nil, failure.Forbidden.New("%s may not create %s entities", actor.UserID, t.ID)
	}
	if err := t.Validate(in.Data); err != nil {
		return nil, err
	}
	vis := in.Visibility
	if vis == "" {
		vis = t.DefaultVisibility
	}
	if err := checkVisibility(vis, in.MembershipTier); err != nil {
		return nil, err
	}
	id, err := s.allocate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e := &Entity{
		ID:             id,
		EntityTypeID:   t.ID,
		OrganizationID: in.OrganizationID,
		Version:        1,
		Status:         StatusDraft,
		Visibility:     vis,
		MembershipTier: in.MembershipTier,
		Data:           in.Data.Merge(nil),
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
	}
	e.Slug = slugFor(e.Data, id)

	stub := e.stub()
	err = store.PutJSON(ctx, s.s, keys.Stub(id), stub, nil)
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	s.stubs.Add(id, stub)
	if err := s.write(ctx, e); err != nil {
		return nil, err
	}
	s.Log.Info("created entity", zap.String("id", id), zap.String("type", t.ID),
		zap.String("org", e.OrganizationID), zap.String("user", actor.UserID))
	s.invalidate(ctx, nil, e)
	return e.copy(), nil
}

// allocate picks an id which has no stub.
func (s *Store) allocate(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := s.newid()
		if err != nil {
			return "", err
		}
		_, err = s.s.Head(ctx, keys.Stub(id))
		if store.IsNotExist(err) {
			return id, nil
		}
		if err != nil {
			return "", failure.StorageUnavailable.Wrap(err)
		}
		s.Log.Debug("entity id collision", zap.String("id", id))
	}
	return "", failure.StorageUnavailable.New("could not find an unused entity id")
}

func checkVisibility(vis Visibility, tier string) error {
	if _, ok := ParseVisibility(string(vis)); !ok {
		return failure.Validation.New("unknown visibility %q", vis)
	}
	if vis == VisibilityMembershipTier {
		if !scope.ValidID(tier) {
			return failure.Validation.New("membership tier %q is not valid", tier)
		}
	} else if tier != "" {
		return failure.Validation.New("membership tier given without membership-tier visibility")
	}
	return nil
}

// Get returns the entity with the given id. If version is 0 the version
// named by the latest pointer is returned, otherwise that snapshot is read
// directly.
func (s *Store) Get(ctx context.Context, id string, version int) (*Entity, error) {
	if version < 0 {
		return nil, failure.Validation.New("version %d is not valid", version)
	}
	stub, err := s.stub(ctx, id)
	if err != nil {
		return nil, err
	}
	if version > 0 {
		return s.snapshot(ctx, stub, version)
	}
	return s.latest(ctx, stub.OrganizationID, stub.EntityTypeID, id)
}

// View is Get for a principal, who must be allowed to see the entity.
func (s *Store) View(ctx context.Context, actor Principal, id string, version int) (*Entity, error) {
	e, err := s.Get(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !s.Policy.CanView(actor, e) {
		return nil, failure.Forbidden.New("%s may not view %s", actor.UserID, id)
	}
	return e, nil
}

// UpdateInput holds the changes to make to a draft.
type UpdateInput struct {
	// Data is merged into the current data. Fields not mentioned are kept.
	Data Data

	// Visibility, if not empty, replaces the visibility and membership tier.
	Visibility     Visibility
	MembershipTier string

	// ExpectedVersion, if positive, must equal the version the latest
	// pointer names when it is read, or the update fails with a conflict.
	// When zero the last writer wins.
	ExpectedVersion int
}

// Update writes a new version of a draft entity. The new snapshot is
// written before the pointer is replaced.
//
// Two updates from the same base version race: both write the same
// snapshot number and whichever pointer write lands last wins. The other
// change is lost.
func (s *Store) Update(ctx context.Context, actor Principal, id string, in UpdateInput) (*Entity, error) {
	current, err := s.Get(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion > 0 && in.ExpectedVersion != current.Version {
		return nil, failure.Conflict.New("entity %s is at version %d, not %d", id, current.Version, in.ExpectedVersion)
	}
	if current.Status != StatusDraft {
		return nil, failure.Conflict.New("entity %s is %s, only drafts may be edited", id, current.Status)
	}
	if !s.Policy.CanCreate(actor, current.EntityTypeID, current.OrganizationID) {
		return nil, failure.Forbidden.New("%s may not edit %s", actor.UserID, id)
	}
	t, err := s.GetType(ctx, current.EntityTypeID)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(in.Data); err != nil {
		return nil, err
	}

	next := current.copy()
	if in.Visibility != "" {
		if err := checkVisibility(in.Visibility, in.MembershipTier); err != nil {
			return nil, err
		}
		next.Visibility = in.Visibility
		next.MembershipTier = in.MembershipTier
	} else if in.MembershipTier != "" {
		return nil, failure.Validation.New("membership tier given without a visibility")
	}
	next.Data = current.Data.Merge(in.Data)
	next.Slug = slugFor(next.Data, id)
	next.Version++
	next.UpdatedAt = s.now()
	next.UpdatedBy = actor.UserID
	if err := s.write(ctx, next); err != nil {
		return nil, err
	}
	s.Log.Info("updated entity", zap.String("id", id), zap.Int("version", next.Version),
		zap.String("user", actor.UserID))
	s.invalidate(ctx, current, next)
	return next.copy(), nil
}

// Versions returns the snapshot numbers stored for an entity, in order.
func (s *Store) Versions(ctx context.Context, id string) ([]int, error) {
	stub, err := s.stub(ctx, id)
	if err != nil {
		return nil, err
	}
	names, err := s.s.List(ctx, keys.Entity(stub.OrganizationID, stub.EntityTypeID, id))
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	var result []int
	for _, name := range names {
		if n, ok := keys.VersionNumber(name); ok {
			result = append(result, n)
		}
	}
	sort.Ints(result)
	return result, nil
}

// write saves e as a new snapshot and then points the latest pointer at it.
func (s *Store) write(ctx context.Context, e *Entity) error {
	err := store.PutJSON(ctx, s.s, keys.Version(e.OrganizationID, e.EntityTypeID, e.ID, e.Version), e, nil)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	err = store.PutJSON(ctx, s.s, keys.Latest(e.OrganizationID, e.EntityTypeID, e.ID), e.pointer(), nil)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	return nil
}

func (s *Store) stub(ctx context.Context, id string) (Stub, error) {
	if !ValidID(id) {
		return Stub{}, failure.NotFound.New("entity %q", id)
	}
	if stub, ok := s.stubs.Get(id); ok {
		return stub, nil
	}
	var stub Stub
	err := store.GetJSON(ctx, s.s, keys.Stub(id), &stub)
	if err != nil {
		return Stub{}, failure.Storage(err, "entity "+id)
	}
	s.stubs.Add(id, stub)
	return stub, nil
}

// latest reads the pointer and the snapshot it names. The pointer is the
// authority on status and visibility.
func (s *Store) latest(ctx context.Context, orgID, typeID, id string) (*Entity, error) {
	var p Pointer
	err := store.GetJSON(ctx, s.s, keys.Latest(orgID, typeID, id), &p)
	if err != nil {
		return nil, failure.Storage(err, "entity "+id)
	}
	e, err := s.snapshot(ctx, Stub{EntityID: id, OrganizationID: orgID, EntityTypeID: typeID}, p.Version)
	if err != nil {
		return nil, err
	}
	e.Status = p.Status
	e.Visibility = p.Visibility
	e.MembershipTier = p.MembershipTier
	e.UpdatedAt = p.UpdatedAt
	return e, nil
}

func (s *Store) snapshot(ctx context.Context, stub Stub, version int) (*Entity, error) {
	var e Entity
	key := keys.Version(stub.OrganizationID, stub.EntityTypeID, stub.EntityID, version)
	err := store.GetJSON(ctx, s.s, key, &e)
	if err != nil {
		return nil, failure.Storage(err, "entity "+stub.EntityID+" version")
	}
	if e.ID != stub.EntityID || e.Version != version {
		return nil, failure.StorageUnavailable.New("snapshot %s holds %s version %d", key, e.ID, e.Version)
	}
	if e.Data == nil {
		e.Data = Data{}
	}
	return &e, nil
}

func (s *Store) invalidate(ctx context.Context, before, after *Entity) {
	if s.Invalidator == nil {
		return
	}
	id := ""
	if after != nil {
		id = after.ID
	} else if before != nil {
		id = before.ID
	}
	if err := s.Invalidator.EntityChanged(ctx, before, after); err != nil {
		s.reportInvalidation(err, id)
	}
}

// The change is already durable by the time bundles are marked, so a
// marking failure is reported but not returned.
func (s *Store) reportInvalidation(err error, id string) {
	s.Log.Error("marking bundles stale", zap.String("id", id), zap.Error(err))
	raven.CaptureError(err, map[string]string{"id": id})
}

func (s *Store) now() time.Time {
	return s.Clock.Now().UTC()
}
