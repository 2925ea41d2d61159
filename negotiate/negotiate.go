// Package negotiate decides what a client has to fetch to bring its copy of
// a scope's manifest and bundles up to date.
//
// Fingerprints are compared against the current manifest only, so a batch
// check never reads bundle bodies.
package negotiate

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/scope"
)

var NotModified = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "negotiate",
	Name:      "not_modified",
}, []string{"kind"})

var SyncChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "folio",
	Subsystem: "negotiate",
	Name:      "sync_checks",
}, []string{"manifest_updated"})

// Collectors returns the metrics of this package, for registering.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{NotModified, SyncChecks}
}

// Source provides the current manifests and bundles. *bundle.Reader is one.
type Source interface {
	Manifest(ctx context.Context, sc scope.Scope) (*bundle.Manifest, error)
	Bundle(ctx context.Context, typeID string, sc scope.Scope) (*bundle.Bundle, error)
}

// Negotiator answers conditional reads and sync checks.
type Negotiator struct {
	src Source
}

// New returns a Negotiator serving from src.
func New(src Source) *Negotiator {
	return &Negotiator{src: src}
}

// ManifestResult is the answer to a conditional manifest read. Manifest is
// nil when NotModified is set.
type ManifestResult struct {
	NotModified bool
	Fingerprint string
	Manifest    *bundle.Manifest
}

// Manifest returns the manifest for sc unless ifFingerprint matches it.
func (n *Negotiator) Manifest(ctx context.Context, sc scope.Scope, ifFingerprint string) (*ManifestResult, error) {
	m, err := n.src.Manifest(ctx, sc)
	if err != nil {
		return nil, err
	}
	if ifFingerprint != "" && ifFingerprint == m.Fingerprint {
		NotModified.WithLabelValues("manifest").Inc()
		return &ManifestResult{NotModified: true, Fingerprint: m.Fingerprint}, nil
	}
	return &ManifestResult{Fingerprint: m.Fingerprint, Manifest: m}, nil
}

// BundleResult is the answer to a conditional bundle read. Bundle is nil
// when NotModified is set.
type BundleResult struct {
	NotModified bool
	Fingerprint string
	Bundle      *bundle.Bundle
}

// Bundle returns the bundle of one type for sc unless ifFingerprint matches
// the fingerprint the manifest lists for it. A type which is not in the
// scope's manifest is NotFound, even if a bundle for it exists.
func (n *Negotiator) Bundle(ctx context.Context, typeID string, sc scope.Scope, ifFingerprint string) (*BundleResult, error) {
	m, err := n.src.Manifest(ctx, sc)
	if err != nil {
		return nil, err
	}
	summary, ok := m.Type(typeID)
	if !ok {
		return nil, failure.NotFound.New("entity type %q is not in the %s manifest", typeID, sc)
	}
	if ifFingerprint != "" && ifFingerprint == summary.BundleFingerprint {
		NotModified.WithLabelValues("bundle").Inc()
		return &BundleResult{NotModified: true, Fingerprint: summary.BundleFingerprint}, nil
	}
	b, err := n.src.Bundle(ctx, typeID, sc)
	if err != nil {
		return nil, err
	}
	return &BundleResult{Fingerprint: b.Fingerprint, Bundle: b}, nil
}

// CheckRequest holds the fingerprints a client last received.
type CheckRequest struct {
	ManifestFingerprint string            `json:"manifestFingerprint"`
	BundleFingerprints  map[string]string `json:"bundleFingerprints"`
}

// CheckResponse tells a client what to fetch. Types listed in
// RemovedTypeIDs are gone from the scope and must be dropped by the client.
type CheckResponse struct {
	ManifestUpdated      bool             `json:"manifestUpdated"`
	Manifest             *bundle.Manifest `json:"manifest,omitempty"`
	UpdatedBundleTypeIDs []string         `json:"updatedBundleTypeIds"`
	RemovedTypeIDs       []string         `json:"removedTypeIds"`
}

// Check compares a client's fingerprints with the current manifest for sc.
// The manifest is included when it changed. A type in the manifest whose
// fingerprint the client does not have, or has a different one for, is
// updated. A type the client has which is not in the manifest is removed.
func (n *Negotiator) Check(ctx context.Context, sc scope.Scope, req CheckRequest) (*CheckResponse, error) {
	m, err := n.src.Manifest(ctx, sc)
	if err != nil {
		return nil, err
	}
	resp := &CheckResponse{
		ManifestUpdated:      req.ManifestFingerprint != m.Fingerprint,
		UpdatedBundleTypeIDs: []string{},
		RemovedTypeIDs:       []string{},
	}
	if resp.ManifestUpdated {
		resp.Manifest = m
	}
	current := make(map[string]bool, len(m.EntityTypes))
	for _, summary := range m.EntityTypes {
		current[summary.ID] = true
		if req.BundleFingerprints[summary.ID] != summary.BundleFingerprint {
			resp.UpdatedBundleTypeIDs = append(resp.UpdatedBundleTypeIDs, summary.ID)
		}
	}
	for id := range req.BundleFingerprints {
		if !current[id] {
			resp.RemovedTypeIDs = append(resp.RemovedTypeIDs, id)
		}
	}
	sort.Strings(resp.UpdatedBundleTypeIDs)
	sort.Strings(resp.RemovedTypeIDs)
	if resp.ManifestUpdated {
		SyncChecks.WithLabelValues("true").Inc()
	} else {
		SyncChecks.WithLabelValues("false").Inc()
	}
	return resp, nil
}
