// Package client keeps a local copy of the manifest and bundles of one scope
// in step with a folio server.
//
// A Session is an explicit state object. Create one with NewSession, call
// Init once, and then Tick whenever the copy should be brought up to date.
// When the user's credentials change call InvalidateOnAuthChange; the cached
// copy belongs to the old credentials and is dropped.
package client

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/negotiate"
	"github.com/ndlib/folio/scope"
)

// Session holds the client side sync state for one scope. It is safe for
// concurrent use. Ticks are serialized; reads of the cache never wait on
// the network.
type Session struct {
	Log *zap.Logger

	conn Connection

	tick sync.Mutex // held for the whole of a tick

	m          sync.RWMutex // protects everything below
	token      string
	scope      scope.Scope
	generation int // bumped every time the cached state is dropped
	manifest   *bundle.Manifest
	bundles    map[string]*bundle.Bundle
}

// Changes describes what a tick did to the cached copy.
type Changes struct {
	ManifestUpdated bool
	Updated         []string // bundles which were replaced
	Removed         []string // bundles which were dropped
}

// Empty is true if the tick changed nothing.
func (c *Changes) Empty() bool {
	return !c.ManifestUpdated && len(c.Updated) == 0 && len(c.Removed) == 0
}

// NewSession returns a session syncing sc from the server at hostURL. token
// may be empty to read as an anonymous user. hc may be nil.
func NewSession(hostURL string, hc *http.Client, token string, sc scope.Scope) *Session {
	return &Session{
		Log:     zap.NewNop(),
		conn:    Connection{HostURL: hostURL, Client: hc},
		token:   token,
		scope:   sc,
		bundles: make(map[string]*bundle.Bundle),
	}
}

// Init drops anything cached and performs a first tick.
func (s *Session) Init(ctx context.Context) (*Changes, error) {
	s.m.Lock()
	s.reset()
	s.m.Unlock()
	return s.Tick(ctx)
}

// Teardown drops all cached state. The session may be used again after
// calling Init.
func (s *Session) Teardown() {
	s.m.Lock()
	s.reset()
	s.m.Unlock()
}

// InvalidateOnAuthChange switches the session to new credentials and scope
// and drops the cached state. A tick in progress when this is called has
// its result discarded.
func (s *Session) InvalidateOnAuthChange(token string, sc scope.Scope) {
	s.m.Lock()
	s.token = token
	s.scope = sc
	s.reset()
	s.m.Unlock()
}

// reset must be called with s.m held.
func (s *Session) reset() {
	s.generation++
	s.manifest = nil
	s.bundles = make(map[string]*bundle.Bundle)
}

// Scope returns the scope currently being synced.
func (s *Session) Scope() scope.Scope {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.scope
}

// Manifest returns the cached manifest, or nil if there is none yet.
func (s *Session) Manifest() *bundle.Manifest {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.manifest
}

// Bundle returns the cached bundle for the given entity type.
func (s *Session) Bundle(typeID string) (*bundle.Bundle, bool) {
	s.m.RLock()
	defer s.m.RUnlock()
	b, ok := s.bundles[typeID]
	return b, ok
}

// TypeIDs lists the entity types with a cached bundle, sorted.
func (s *Session) TypeIDs() []string {
	s.m.RLock()
	defer s.m.RUnlock()
	result := make([]string, 0, len(s.bundles))
	for id := range s.bundles {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Tick sends the fingerprints of the cached copy to the server and fetches
// whatever changed. Bundles are replaced whole. A bundle is only requested
// if its type is in the newest manifest, and bundles of types which left
// the manifest are dropped. On error the cached copy is left as it was.
func (s *Session) Tick(ctx context.Context) (*Changes, error) {
	s.tick.Lock()
	defer s.tick.Unlock()

	s.m.RLock()
	gen := s.generation
	token := s.token
	sc := s.scope
	req := negotiate.CheckRequest{BundleFingerprints: make(map[string]string, len(s.bundles))}
	manifest := s.manifest
	if manifest != nil {
		req.ManifestFingerprint = manifest.Fingerprint
	}
	for id, b := range s.bundles {
		req.BundleFingerprints[id] = b.Fingerprint
	}
	s.m.RUnlock()

	var resp negotiate.CheckResponse
	err := s.conn.doJSON(ctx, "POST", scopePath("sync", sc), token, nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ManifestUpdated {
		if resp.Manifest == nil {
			return nil, ErrBadEnvelope
		}
		manifest = resp.Manifest
	}
	if manifest == nil {
		return nil, ErrBadEnvelope
	}

	fetched := make(map[string]*bundle.Bundle)
	for _, id := range resp.UpdatedBundleTypeIDs {
		if _, ok := manifest.Type(id); !ok {
			continue
		}
		var b bundle.Bundle
		var header http.Header
		if fp := req.BundleFingerprints[id]; fp != "" {
			header = http.Header{"If-None-Match": {`"` + fp + `"`}}
		}
		err := s.conn.doJSON(ctx, "GET", scopePath("bundle", sc, id), token, header, nil, &b)
		if err == ErrNotModified {
			continue
		}
		if err != nil {
			return nil, err
		}
		fetched[id] = &b
	}

	s.m.Lock()
	defer s.m.Unlock()
	if gen != s.generation {
		s.Log.Info("discarding tick after credential change", zap.String("scope", sc.String()))
		return &Changes{}, nil
	}
	changes := &Changes{ManifestUpdated: resp.ManifestUpdated}
	s.manifest = manifest
	for id := range s.bundles {
		if _, ok := manifest.Type(id); !ok {
			delete(s.bundles, id)
			changes.Removed = append(changes.Removed, id)
		}
	}
	for id, b := range fetched {
		s.bundles[id] = b
		changes.Updated = append(changes.Updated, id)
	}
	sort.Strings(changes.Removed)
	sort.Strings(changes.Updated)
	s.Log.Debug("tick",
		zap.String("scope", sc.String()),
		zap.Bool("manifest", changes.ManifestUpdated),
		zap.Strings("updated", changes.Updated),
		zap.Strings("removed", changes.Removed))
	return changes, nil
}
