package entity

import (
	"context"
	"time"
)

// Status is where an entity is in the approval workflow.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	// StatusDeleted is only reported for an entity which has just been
	// purged. Nothing in the store is ever left with this status.
	StatusDeleted Status = "deleted"
)

// ParseStatus returns the Status named by s.
func ParseStatus(s string) (Status, bool) {
	switch v := Status(s); v {
	case StatusDraft, StatusPending, StatusPublished, StatusArchived, StatusDeleted:
		return v, true
	}
	return "", false
}

// Visibility says which audiences may see a published entity.
type Visibility string

const (
	VisibilityPrivate        Visibility = "private"
	VisibilityPlatform       Visibility = "platform"
	VisibilityPublic         Visibility = "public"
	VisibilityMembershipTier Visibility = "membership-tier"
)

// ParseVisibility returns the Visibility named by s.
func ParseVisibility(s string) (Visibility, bool) {
	switch v := Visibility(s); v {
	case VisibilityPrivate, VisibilityPlatform, VisibilityPublic, VisibilityMembershipTier:
		return v, true
	}
	return "", false
}

// Entity is one version of a record. The snapshot objects in the store are
// serialized Entities.
type Entity struct {
	ID             string     `json:"id"`
	EntityTypeID   string     `json:"entityTypeId"`
	OrganizationID string     `json:"organizationId,omitempty"` // empty for global entities
	Version        int        `json:"version"`
	Status         Status     `json:"status"`
	Visibility     Visibility `json:"visibility"`
	MembershipTier string     `json:"membershipTier,omitempty"` // only with VisibilityMembershipTier
	Slug           string     `json:"slug"`
	Data           Data       `json:"data"`
	Feedback       string     `json:"feedback,omitempty"` // set by a reject
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CreatedBy      string     `json:"createdBy"`
	UpdatedBy      string     `json:"updatedBy"`
}

// Stub is the immutable birth record of an entity.
type Stub struct {
	EntityID       string    `json:"entityId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	EntityTypeID   string    `json:"entityTypeId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Pointer names the current version of an entity.
type Pointer struct {
	Version        int        `json:"version"`
	Status         Status     `json:"status"`
	Visibility     Visibility `json:"visibility"`
	MembershipTier string     `json:"membershipTier,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (e *Entity) pointer() Pointer {
	return Pointer{
		Version:        e.Version,
		Status:         e.Status,
		Visibility:     e.Visibility,
		MembershipTier: e.MembershipTier,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (e *Entity) stub() Stub {
	return Stub{
		EntityID:       e.ID,
		OrganizationID: e.OrganizationID,
		EntityTypeID:   e.EntityTypeID,
		CreatedAt:      e.CreatedAt,
	}
}

// copy returns a copy of e which shares nothing mutable with it.
func (e *Entity) copy() *Entity {
	c := *e
	c.Data = e.Data.Merge(nil)
	return &c
}

// An Invalidator is told about every entity and type change once the change
// is durable. before is nil for a create and after is nil for a purge.
type Invalidator interface {
	EntityChanged(ctx context.Context, before, after *Entity) error
	TypeChanged(ctx context.Context, typeID string) error
}
