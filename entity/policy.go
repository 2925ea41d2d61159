package entity

import (
	"fmt"
	"strings"

	"github.com/ndlib/folio/scope"
)

// Role is the part a principal plays. The zero Role is an anonymous reader.
type Role string

const (
	RoleAnonymous  Role = ""
	RoleOrgMember  Role = "org_member"
	RoleOrgAdmin   Role = "org_admin"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole returns the role named by s, ignoring case. Unknown names give
// RoleAnonymous and false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleOrgMember, RoleOrgAdmin, RoleSuperadmin:
		return r, true
	}
	return RoleAnonymous, false
}

// Principal is whoever is making a request. Authentication happens
// elsewhere; by the time a Principal reaches this package it is trusted.
type Principal struct {
	UserID         string
	Role           Role
	OrganizationID string // empty for superadmins and anonymous readers
	MembershipTier string // optional
}

// Anonymous is the principal used when no credentials were given.
var Anonymous = Principal{}

// Authenticated is true for every principal except an anonymous one.
func (p Principal) Authenticated() bool {
	return p.Role != RoleAnonymous
}

// A Policy decides who may do what. Entity passes it only the facts it
// needs and acts on the boolean returned.
type Policy interface {
	CanCreate(actor Principal, entityTypeID, organizationID string) bool
	CanView(actor Principal, e *Entity) bool
	CanTransition(actor Principal, action Action, e *Entity) bool
}

// DefaultPolicy is the role table used when no other policy is configured.
//
// Superadmins may do anything. Members and admins of an organization may
// create and edit its drafts. Submitting and archiving need an org admin of
// the owning organization. Approving, rejecting and purging need a
// superadmin. Global entities, those with no organization, are managed by
// superadmins only.
type DefaultPolicy struct{}

var _ Policy = DefaultPolicy{}

// CanCreate implements Policy.
func (DefaultPolicy) CanCreate(actor Principal, entityTypeID, organizationID string) bool {
	switch actor.Role {
	case RoleSuperadmin:
		return true
	case RoleOrgAdmin, RoleOrgMember:
		return organizationID != "" && actor.OrganizationID == organizationID
	}
	return false
}

// CanView implements Policy.
func (DefaultPolicy) CanView(actor Principal, e *Entity) bool {
	if actor.Role == RoleSuperadmin {
		return true
	}
	if e.OrganizationID != "" && actor.OrganizationID == e.OrganizationID {
		switch actor.Role {
		case RoleOrgAdmin:
			return true
		case RoleOrgMember:
			return e.Status != StatusArchived
		}
	}
	if e.Status != StatusPublished {
		return false
	}
	switch e.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityPlatform:
		return actor.Authenticated()
	case VisibilityMembershipTier:
		return actor.Authenticated() && actor.MembershipTier != "" && actor.MembershipTier == e.MembershipTier
	}
	return false
}

// CanTransition implements Policy.
func (DefaultPolicy) CanTransition(actor Principal, action Action, e *Entity) bool {
	if actor.Role == RoleSuperadmin {
		return true
	}
	switch action {
	case ActionSubmit, ActionArchive:
		return actor.Role == RoleOrgAdmin && e.OrganizationID != "" && actor.OrganizationID == e.OrganizationID
	}
	return false
}

// CanReadScope reports whether actor may read the bundles and manifest of
// the given scope.
func CanReadScope(actor Principal, s scope.Scope) bool {
	if actor.Role == RoleSuperadmin {
		return true
	}
	switch s := s.(type) {
	case scope.Public:
		return true
	case scope.Platform:
		return actor.Authenticated()
	case scope.MembershipTier:
		return actor.Authenticated() && actor.MembershipTier == s.TierID
	case scope.OrgMember:
		return (actor.Role == RoleOrgMember || actor.Role == RoleOrgAdmin) && actor.OrganizationID == s.OrgID
	case scope.OrgAdmin:
		return actor.Role == RoleOrgAdmin && actor.OrganizationID == s.OrgID
	}
	panic(fmt.Sprintf("unknown scope %T", s))
}

// InScope reports whether e belongs in the bundles built for s.
//
// Public holds published public entities and Platform adds published
// platform entities. A membership tier adds the published entities
// restricted to that tier. The two organization scopes add the
// organization's own drafts and pending entities, whatever their
// visibility, and the admin scope also its archived ones.
func InScope(s scope.Scope, e *Entity) bool {
	published := e.Status == StatusPublished
	switch s := s.(type) {
	case scope.Public:
		return published && e.Visibility == VisibilityPublic
	case scope.Platform:
		return published && (e.Visibility == VisibilityPublic || e.Visibility == VisibilityPlatform)
	case scope.MembershipTier:
		if InScope(scope.Platform{}, e) {
			return true
		}
		return published && e.Visibility == VisibilityMembershipTier && e.MembershipTier == s.TierID
	case scope.OrgMember:
		if InScope(scope.Platform{}, e) {
			return true
		}
		if e.OrganizationID != s.OrgID {
			return false
		}
		switch e.Status {
		case StatusDraft, StatusPending, StatusPublished:
			return true
		}
		return false
	case scope.OrgAdmin:
		if InScope(scope.OrgMember{OrgID: s.OrgID}, e) {
			return true
		}
		return e.OrganizationID == s.OrgID && e.Status == StatusArchived
	}
	panic(fmt.Sprintf("unknown scope %T", s))
}
