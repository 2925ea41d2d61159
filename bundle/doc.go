// Package bundle materializes the read side of folio.
//
// A bundle is every entity of one type which belongs in one scope, with its
// full data, written as a single JSON object under bundles/. A manifest
// lists, for one scope, each active entity type with its entity count and
// the fingerprint of its bundle. Both are derived: they can be deleted and
// rebuilt at any time, and rebuilding without any entity change gives the
// same fingerprint.
//
// Entity changes do not rebuild anything. They leave a marker under stale/
// for every (scope, type) pair the change affects, and RebuildStale later
// rebuilds the marked bundles and the manifests of their scopes. A marker
// is deleted before its bundle is rebuilt, so a change which lands during
// the rebuild marks the bundle again.
//
// A Reader serves the stored manifests and bundles. It builds one which
// does not exist yet, and falls back to the last copy it served when the
// object store fails.
package bundle
