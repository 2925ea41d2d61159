// Package keys maps entities, types, bundles and manifests onto object store
// keys. Everything here is pure string manipulation.
//
// The layout is
//
//	stubs/{entityId}.json
//	global/entities/{typeId}/{entityId}/latest.json
//	orgs/{orgId}/entities/{typeId}/{entityId}/latest.json
//	.../{entityId}/v{n}.json
//	entity-types/{typeId}.json
//	bundles/{scopeKey}/{typeId}.json
//	manifests/{scopeKey}.json
//	stale/{scopeKey}/{typeId}
//
// An entity with no organization lives under global/.
package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ndlib/folio/scope"
)

var validID = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidID reports whether s may appear as an id inside a key.
func ValidID(s string) bool {
	return validID.MatchString(s)
}

// Stub is the key of the birth record for an entity.
func Stub(entityID string) string {
	return "stubs/" + entityID + ".json"
}

// StubPrefix is the prefix under which every stub lives.
const StubPrefix = "stubs/"

// EntityID extracts the entity id from a stub key.
func EntityID(stubKey string) (string, bool) {
	if !strings.HasPrefix(stubKey, StubPrefix) || !strings.HasSuffix(stubKey, ".json") {
		return "", false
	}
	id := stubKey[len(StubPrefix) : len(stubKey)-len(".json")]
	return id, ValidID(id)
}

// Entity returns the directory holding the pointer and snapshots of one
// entity, including the trailing slash.
func Entity(orgID, typeID, entityID string) string {
	return TypeDir(orgID, typeID) + entityID + "/"
}

// TypeDir returns the directory holding every entity of one type owned by
// orgID, including the trailing slash. An empty orgID means global.
func TypeDir(orgID, typeID string) string {
	if orgID == "" {
		return "global/entities/" + typeID + "/"
	}
	return "orgs/" + orgID + "/entities/" + typeID + "/"
}

// Latest is the key of the entity's latest pointer.
func Latest(orgID, typeID, entityID string) string {
	return Entity(orgID, typeID, entityID) + "latest.json"
}

// Version is the key of one snapshot.
func Version(orgID, typeID, entityID string, n int) string {
	return Entity(orgID, typeID, entityID) + "v" + strconv.Itoa(n) + ".json"
}

// VersionNumber returns the snapshot number encoded in key. The second
// result is false if key is not a snapshot key.
func VersionNumber(key string) (int, bool) {
	i := strings.LastIndexByte(key, '/')
	name := key[i+1:]
	if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	n, err := strconv.Atoi(name[1 : len(name)-len(".json")])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Type is the key of an entity type definition.
func Type(typeID string) string {
	return "entity-types/" + typeID + ".json"
}

// TypePrefix is the prefix under which every type definition lives.
const TypePrefix = "entity-types/"

// TypeID extracts the type id from a type definition key.
func TypeID(key string) (string, bool) {
	if !strings.HasPrefix(key, TypePrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	id := key[len(TypePrefix) : len(key)-len(".json")]
	return id, ValidID(id)
}

// BundlePrefix is the prefix under which every bundle lives.
const BundlePrefix = "bundles/"

// Bundle is the key of the bundle of one type for one scope.
func Bundle(s scope.Scope, typeID string) string {
	return BundlePrefix + s.Key() + "/" + typeID + ".json"
}

// Manifest is the key of the manifest for one scope.
func Manifest(s scope.Scope) string {
	return ManifestPrefix + s.Key() + ".json"
}

// ManifestPrefix is the prefix under which every manifest lives.
const ManifestPrefix = "manifests/"

// ManifestScope recovers the scope from a manifest key.
func ManifestScope(key string) (scope.Scope, error) {
	if !strings.HasPrefix(key, ManifestPrefix) || !strings.HasSuffix(key, ".json") {
		return nil, fmt.Errorf("not a manifest key: %q", key)
	}
	return scope.ParseKey(key[len(ManifestPrefix) : len(key)-len(".json")])
}

// StalePrefix is the prefix under which every stale marker lives.
const StalePrefix = "stale/"

// Stale is the key of the marker saying a bundle needs rebuilding.
func Stale(s scope.Scope, typeID string) string {
	return StalePrefix + s.Key() + "/" + typeID
}

// ParseStale splits a stale marker key into its scope and type id.
func ParseStale(key string) (scope.Scope, string, error) {
	rest := strings.TrimPrefix(key, StalePrefix)
	i := strings.IndexByte(rest, '/')
	if rest == key || i < 0 {
		return nil, "", fmt.Errorf("not a stale key: %q", key)
	}
	typeID := rest[i+1:]
	if !ValidID(typeID) {
		return nil, "", fmt.Errorf("bad type id in stale key: %q", key)
	}
	s, err := scope.ParseKey(rest[:i])
	if err != nil {
		return nil, "", err
	}
	return s, typeID, nil
}

// ParseLatest splits a latest pointer key into its organization, type and
// entity ids. orgID is empty for global entities.
func ParseLatest(key string) (orgID, typeID, entityID string, ok bool) {
	if !strings.HasSuffix(key, "/latest.json") {
		return "", "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(key, "/latest.json"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "global" && parts[1] == "entities":
		typeID, entityID = parts[2], parts[3]
	case len(parts) == 5 && parts[0] == "orgs" && parts[2] == "entities":
		orgID, typeID, entityID = parts[1], parts[3], parts[4]
		if !ValidID(orgID) {
			return "", "", "", false
		}
	default:
		return "", "", "", false
	}
	if !ValidID(typeID) || !ValidID(entityID) {
		return "", "", "", false
	}
	return orgID, typeID, entityID, true
}

// EntityPrefixes returns the prefixes to list to find the latest pointers of
// entities matching the type and organization. Either may be empty to mean
// any.
func EntityPrefixes(orgID, typeID string) []string {
	switch {
	case orgID != "" && typeID != "":
		return []string{TypeDir(orgID, typeID)}
	case orgID != "":
		return []string{"orgs/" + orgID + "/entities/"}
	case typeID != "":
		return []string{TypeDir("", typeID), "orgs/"}
	}
	return []string{"global/entities/", "orgs/"}
}
