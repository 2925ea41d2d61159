// Package scope names the audiences bundles and manifests are built for.
//
// A Scope is one of Public, Platform, MembershipTier, OrgMember or OrgAdmin.
// The set is closed: code that needs to treat each kind differently does a
// type switch over these five types.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scope is an audience tier.
type Scope interface {
	// String is the external form, e.g. "org:abc:member".
	String() string
	// Key is the form used inside object store keys, e.g. "org-abc-member".
	Key() string

	isScope()
}

// Public is everyone, including anonymous readers.
type Public struct{}

// Platform is any signed in user of the platform.
type Platform struct{}

// MembershipTier is signed in users holding the given membership tier.
type MembershipTier struct{ TierID string }

// OrgMember is the members of one organization.
type OrgMember struct{ OrgID string }

// OrgAdmin is the administrators of one organization.
type OrgAdmin struct{ OrgID string }

func (Public) String() string           { return "public" }
func (Platform) String() string         { return "platform" }
func (s MembershipTier) String() string { return "tier:" + s.TierID }
func (s OrgMember) String() string      { return "org:" + s.OrgID + ":member" }
func (s OrgAdmin) String() string       { return "org:" + s.OrgID + ":admin" }

func (Public) Key() string           { return "public" }
func (Platform) Key() string         { return "platform" }
func (s MembershipTier) Key() string { return "tier-" + s.TierID }
func (s OrgMember) Key() string      { return "org-" + s.OrgID + "-member" }
func (s OrgAdmin) Key() string       { return "org-" + s.OrgID + "-admin" }

func (Public) isScope()         {}
func (Platform) isScope()       {}
func (MembershipTier) isScope() {}
func (OrgMember) isScope()      {}
func (OrgAdmin) isScope()       {}

var (
	// ErrBadScope is returned when a scope string cannot be parsed.
	ErrBadScope = errors.New("unrecognized scope")

	idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
)

// ValidID reports whether s may be used as an organization or tier id.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// Parse decodes the external form of a scope.
func Parse(s string) (Scope, error) {
	switch {
	case s == "public":
		return Public{}, nil
	case s == "platform":
		return Platform{}, nil
	case strings.HasPrefix(s, "tier:"):
		return checked(MembershipTier{TierID: s[len("tier:"):]}, s)
	case strings.HasPrefix(s, "org:"):
		rest := s[len("org:"):]
		if id := strings.TrimSuffix(rest, ":member"); id != rest {
			return checked(OrgMember{OrgID: id}, s)
		}
		if id := strings.TrimSuffix(rest, ":admin"); id != rest {
			return checked(OrgAdmin{OrgID: id}, s)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBadScope, s)
}

// ParseKey decodes the form returned by Key.
func ParseKey(k string) (Scope, error) {
	switch {
	case k == "public":
		return Public{}, nil
	case k == "platform":
		return Platform{}, nil
	case strings.HasPrefix(k, "tier-"):
		return checked(MembershipTier{TierID: k[len("tier-"):]}, k)
	case strings.HasPrefix(k, "org-"):
		rest := k[len("org-"):]
		if id := strings.TrimSuffix(rest, "-member"); id != rest {
			return checked(OrgMember{OrgID: id}, k)
		}
		if id := strings.TrimSuffix(rest, "-admin"); id != rest {
			return checked(OrgAdmin{OrgID: id}, k)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBadScope, k)
}

func checked(s Scope, orig string) (Scope, error) {
	var id string
	switch v := s.(type) {
	case MembershipTier:
		id = v.TierID
	case OrgMember:
		id = v.OrgID
	case OrgAdmin:
		id = v.OrgID
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrBadScope, orig)
	}
	return s, nil
}

// ForOrg returns the two scopes belonging to an organization.
func ForOrg(orgID string) []Scope {
	return []Scope{OrgMember{OrgID: orgID}, OrgAdmin{OrgID: orgID}}
}
