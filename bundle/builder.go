package bundle

import (
	"context"
	"sort"
	"time"

	"github.com/facebookgo/clock"
	raven "github.com/getsentry/raven-go"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/store"
)

// Source is where a Builder reads entities and types from. *entity.Store
// is one.
type Source interface {
	Scan(ctx context.Context, orgID, typeID string) ([]*entity.Entity, error)
	GetType(ctx context.Context, id string) (*entity.EntityType, error)
	ListTypes(ctx context.Context, includeInactive bool) ([]*entity.EntityType, error)
}

// Builder writes bundles and manifests into the object store, and tracks
// which bundles are stale. Set the exported fields before first use.
type Builder struct {
	Clock clock.Clock
	Log   *zap.Logger

	src Source
	s   store.Store
}

var _ entity.Invalidator = &Builder{}

// NewBuilder returns a Builder reading from src and writing to s.
func NewBuilder(src Source, s store.Store) *Builder {
	return &Builder{
		Clock: clock.New(),
		Log:   zap.NewNop(),
		src:   src,
		s:     s,
	}
}

// BuildBundle gathers the entities of one type in one scope and saves them
// as a bundle. Any stale marker for the bundle is removed first, and put
// back if the build then fails, so a write landing during the scan or a
// failed build leaves the bundle marked.
func (b *Builder) BuildBundle(ctx context.Context, typeID string, sc scope.Scope) (result *Bundle, err error) {
	start := time.Now()
	defer func() { BuildDuration.WithLabelValues("bundle").Observe(time.Since(start).Seconds()) }()

	t, err := b.src.GetType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	err = b.s.Delete(ctx, keys.Stale(sc, t.ID))
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	defer func() {
		if err == nil {
			return
		}
		if merr := b.mark(ctx, sc, t.ID); merr != nil {
			b.Log.Error("restoring stale marker", zap.String("type", t.ID), zap.Stringer("scope", sc), zap.Error(merr))
			raven.CaptureError(merr, nil)
		}
	}()
	all, err := b.src.Scan(ctx, "", t.ID)
	if err != nil {
		return nil, err
	}
	records := []Record{}
	for _, e := range all {
		if entity.InScope(sc, e) {
			records = append(records, project(e))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	fp, err := bundleFingerprint(t.ID, sc.String(), records)
	if err != nil {
		return nil, err
	}
	bun := &Bundle{
		EntityTypeID: t.ID,
		Scope:        sc.String(),
		Fingerprint:  fp,
		GeneratedAt:  b.Clock.Now().UTC(),
		EntityCount:  len(records),
		Entities:     records,
	}
	err = store.PutJSON(ctx, b.s, keys.Bundle(sc, t.ID), bun, &store.Metadata{ETag: fp})
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	BundleBuilds.WithLabelValues(t.ID).Inc()
	b.Log.Info("built bundle", zap.String("type", t.ID), zap.Stringer("scope", sc),
		zap.Int("count", len(records)), zap.String("fingerprint", fp))
	return bun, nil
}

// BuildManifest writes the manifest for a scope. Each active type's stored
// bundle is used unless it is stale or missing, in which case it is built
// first.
func (b *Builder) BuildManifest(ctx context.Context, sc scope.Scope) (*Manifest, error) {
	start := time.Now()
	defer func() { BuildDuration.WithLabelValues("manifest").Observe(time.Since(start).Seconds()) }()

	types, err := b.src.ListTypes(ctx, false)
	if err != nil {
		return nil, err
	}
	summaries := []Summary{}
	for _, t := range types {
		bun, err := b.current(ctx, t.ID, sc)
		if err != nil {
			return nil, err
		}
		summary := Summary{
			ID:                t.ID,
			Name:              t.Name,
			PluralName:        t.PluralName,
			EntityCount:       bun.EntityCount,
			BundleFingerprint: bun.Fingerprint,
		}
		for _, r := range bun.Entities {
			if r.UpdatedAt.After(summary.LastUpdated) {
				summary.LastUpdated = r.UpdatedAt
			}
		}
		summaries = append(summaries, summary)
	}
	fp, err := manifestFingerprint(sc.String(), summaries)
	if err != nil {
		return nil, err
	}
	result := &Manifest{
		Scope:       sc.String(),
		Fingerprint: fp,
		GeneratedAt: b.Clock.Now().UTC(),
		EntityTypes: summaries,
	}
	err = store.PutJSON(ctx, b.s, keys.Manifest(sc), result, &store.Metadata{ETag: fp})
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	ManifestBuilds.Inc()
	b.Log.Info("built manifest", zap.Stringer("scope", sc), zap.Int("types", len(summaries)),
		zap.String("fingerprint", fp))
	return result, nil
}

// current returns the stored bundle if it is up to date, and builds it
// otherwise.
func (b *Builder) current(ctx context.Context, typeID string, sc scope.Scope) (*Bundle, error) {
	_, err := b.s.Head(ctx, keys.Stale(sc, typeID))
	if err == nil {
		return b.BuildBundle(ctx, typeID, sc)
	} else if !store.IsNotExist(err) {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	var bun Bundle
	err = store.GetJSON(ctx, b.s, keys.Bundle(sc, typeID), &bun)
	if store.IsNotExist(err) {
		return b.BuildBundle(ctx, typeID, sc)
	} else if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	return &bun, nil
}

// Scopes returns every scope which has a manifest.
func (b *Builder) Scopes(ctx context.Context) ([]scope.Scope, error) {
	names, err := b.s.List(ctx, keys.ManifestPrefix)
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	var result []scope.Scope
	for _, name := range names {
		sc, err := keys.ManifestScope(name)
		if err != nil {
			b.Log.Warn("ignoring manifest", zap.String("key", name), zap.Error(err))
			continue
		}
		result = append(result, sc)
	}
	return result, nil
}

// known returns the scopes any entity change may touch: the two platform
// wide scopes, the scopes of the given organizations and membership tiers,
// and every scope with a manifest.
func (b *Builder) known(ctx context.Context, orgs, tiers []string) ([]scope.Scope, error) {
	result := []scope.Scope{scope.Public{}, scope.Platform{}}
	for _, org := range orgs {
		if org != "" {
			result = append(result, scope.ForOrg(org)...)
		}
	}
	for _, tier := range tiers {
		if tier != "" {
			result = append(result, scope.MembershipTier{TierID: tier})
		}
	}
	existing, err := b.Scopes(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[scope.Scope]bool)
	var unique []scope.Scope
	for _, sc := range append(result, existing...) {
		if !seen[sc] {
			seen[sc] = true
			unique = append(unique, sc)
		}
	}
	return unique, nil
}

// EntityChanged marks the bundles of every scope which held the entity
// before the change or holds it after.
func (b *Builder) EntityChanged(ctx context.Context, before, after *entity.Entity) error {
	var orgs, tiers []string
	var typeID string
	for _, e := range []*entity.Entity{before, after} {
		if e != nil {
			orgs = append(orgs, e.OrganizationID)
			tiers = append(tiers, e.MembershipTier)
			typeID = e.EntityTypeID
		}
	}
	if typeID == "" {
		return nil
	}
	scopes, err := b.known(ctx, orgs, tiers)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		if (before != nil && entity.InScope(sc, before)) || (after != nil && entity.InScope(sc, after)) {
			if err := b.mark(ctx, sc, typeID); err != nil {
				return err
			}
		}
	}
	return nil
}

// TypeChanged marks the type's bundle stale in every known scope, since a
// renamed or deactivated type changes every manifest.
func (b *Builder) TypeChanged(ctx context.Context, typeID string) error {
	scopes, err := b.known(ctx, nil, nil)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		if err := b.mark(ctx, sc, typeID); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) mark(ctx context.Context, sc scope.Scope, typeID string) error {
	err := b.s.Put(ctx, keys.Stale(sc, typeID), []byte(b.Clock.Now().UTC().Format(time.RFC3339Nano)), nil)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	StaleMarks.Inc()
	b.Log.Debug("marked stale", zap.Stringer("scope", sc), zap.String("type", typeID))
	return nil
}

// Stale returns the (scope, type) pairs which are marked stale.
func (b *Builder) Stale(ctx context.Context) ([]Target, error) {
	names, err := b.s.List(ctx, keys.StalePrefix)
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	var result []Target
	for _, name := range names {
		sc, typeID, err := keys.ParseStale(name)
		if err != nil {
			b.Log.Warn("ignoring stale marker", zap.String("key", name), zap.Error(err))
			continue
		}
		result = append(result, Target{Scope: sc, EntityTypeID: typeID})
	}
	return result, nil
}

// Target names one bundle.
type Target struct {
	Scope        scope.Scope
	EntityTypeID string
}

// Report says what a RebuildStale did.
type Report struct {
	Bundles   []Target
	Manifests []scope.Scope
	Removed   []Target // bundles of deleted types
}

// RebuildStale rebuilds every bundle marked stale and then the manifests of
// the scopes they belong to. Bundles of types which no longer exist are
// deleted. It carries on past errors and returns them all together.
func (b *Builder) RebuildStale(ctx context.Context) (*Report, error) {
	targets, err := b.Stale(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	var group errs.Group
	touched := make(map[scope.Scope][]Target)
	var order []scope.Scope
	for _, target := range targets {
		if _, ok := touched[target.Scope]; !ok {
			order = append(order, target.Scope)
		}
		touched[target.Scope] = append(touched[target.Scope], target)
		_, err := b.BuildBundle(ctx, target.EntityTypeID, target.Scope)
		if failure.NotFound.Has(err) {
			err = b.remove(ctx, target)
			if err == nil {
				report.Removed = append(report.Removed, target)
			}
		} else if err == nil {
			report.Bundles = append(report.Bundles, target)
		}
		if err != nil {
			group.Add(err)
		}
	}
	for _, sc := range order {
		if _, err := b.BuildManifest(ctx, sc); err != nil {
			group.Add(err)
			// the manifest still describes the old bundles; leave them
			// marked so the next rebuild writes it again
			for _, target := range touched[sc] {
				if merr := b.mark(ctx, sc, target.EntityTypeID); merr != nil {
					group.Add(merr)
				}
			}
			continue
		}
		report.Manifests = append(report.Manifests, sc)
	}
	err = group.Err()
	if err != nil {
		b.Log.Error("rebuilding stale bundles", zap.Error(err))
		raven.CaptureError(err, nil)
	}
	return report, err
}

func (b *Builder) remove(ctx context.Context, target Target) error {
	err := b.s.Delete(ctx, keys.Bundle(target.Scope, target.EntityTypeID))
	if err == nil {
		err = b.s.Delete(ctx, keys.Stale(target.Scope, target.EntityTypeID))
	}
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	b.Log.Info("removed bundle", zap.String("type", target.EntityTypeID), zap.Stringer("scope", target.Scope))
	return nil
}
