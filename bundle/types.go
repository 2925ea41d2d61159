package bundle

import (
	"time"

	"github.com/ndlib/folio/entity"
)

// Record is an entity as carried in a bundle.
type Record struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Slug           string            `json:"slug"`
	Status         entity.Status     `json:"status"`
	Visibility     entity.Visibility `json:"visibility"`
	MembershipTier string            `json:"membershipTier,omitempty"`
	Version        int               `json:"version"`
	Data           entity.Data       `json:"data"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Bundle is the entities of one type in one scope, sorted by id.
type Bundle struct {
	EntityTypeID string    `json:"entityTypeId"`
	Scope        string    `json:"scope"`
	Fingerprint  string    `json:"fingerprint"`
	GeneratedAt  time.Time `json:"generatedAt"`
	EntityCount  int       `json:"entityCount"`
	Entities     []Record  `json:"entities"`
}

// Summary describes one entity type in a manifest.
type Summary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PluralName        string    `json:"pluralName"`
	EntityCount       int       `json:"entityCount"`
	BundleFingerprint string    `json:"bundleFingerprint"`
	LastUpdated       time.Time `json:"lastUpdated"` // zero when the bundle is empty
}

// Manifest is the index of the bundles of one scope, sorted by type id.
type Manifest struct {
	Scope       string    `json:"scope"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generatedAt"`
	EntityTypes []Summary `json:"entityTypes"`
}

// Type returns the summary for the given type id.
func (m *Manifest) Type(id string) (Summary, bool) {
	for _, s := range m.EntityTypes {
		if s.ID == id {
			return s, true
		}
	}
	return Summary{}, false
}

func project(e *entity.Entity) Record {
	return Record{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Slug:           e.Slug,
		Status:         e.Status,
		Visibility:     e.Visibility,
		MembershipTier: e.MembershipTier,
		Version:        e.Version,
		Data:           e.Data,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
