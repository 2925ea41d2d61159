package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/scope"
)

// ListTypes returns the active entity types. Superadmins may pass all to
// include inactive ones.
func (c *Connection) ListTypes(ctx context.Context, all bool) ([]*entity.EntityType, error) {
	path := "/entity-types"
	if all {
		path += "?all=1"
	}
	var result []*entity.EntityType
	err := c.doJSON(ctx, "GET", path, c.Token, nil, nil, &result)
	return result, err
}

// PutType creates or replaces an entity type.
func (c *Connection) PutType(ctx context.Context, t entity.EntityType) (*entity.EntityType, error) {
	var result entity.EntityType
	err := c.doJSON(ctx, "PUT", "/entity-types/"+url.PathEscape(t.ID), c.Token, nil, t, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type createBody struct {
	EntityTypeID   string            `json:"entityTypeId"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Data           entity.Data       `json:"data"`
	Visibility     entity.Visibility `json:"visibility,omitempty"`
	MembershipTier string            `json:"membershipTier,omitempty"`
}

// CreateEntity makes a new draft entity.
func (c *Connection) CreateEntity(ctx context.Context, in entity.CreateInput) (*entity.Entity, error) {
	body := createBody{
		EntityTypeID:   in.EntityTypeID,
		OrganizationID: in.OrganizationID,
		Data:           in.Data,
		Visibility:     in.Visibility,
		MembershipTier: in.MembershipTier,
	}
	var result entity.Entity
	err := c.doJSON(ctx, "POST", "/entities", c.Token, nil, body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEntity returns the given version of an entity. A version of 0 means
// the latest one.
func (c *Connection) GetEntity(ctx context.Context, id string, version int) (*entity.Entity, error) {
	path := "/entities/" + url.PathEscape(id)
	if version > 0 {
		path += "?version=" + strconv.Itoa(version)
	}
	var result entity.Entity
	err := c.doJSON(ctx, "GET", path, c.Token, nil, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Versions lists the version numbers stored for an entity.
func (c *Connection) Versions(ctx context.Context, id string) ([]int, error) {
	var result []int
	err := c.doJSON(ctx, "GET", "/entities/"+url.PathEscape(id)+"/versions", c.Token, nil, nil, &result)
	return result, err
}

// ListEntities returns one page of the entities the connection's user may
// see.
func (c *Connection) ListEntities(ctx context.Context, opts entity.ListOptions) (*entity.Page, error) {
	q := url.Values{}
	add := func(name, value string) {
		if value != "" {
			q.Set(name, value)
		}
	}
	add("type", opts.EntityTypeID)
	add("org", opts.OrganizationID)
	add("status", string(opts.Status))
	add("search", opts.Search)
	add("sort", opts.Sort)
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	path := "/entities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result entity.Page
	err := c.doJSON(ctx, "GET", path, c.Token, nil, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type updateBody struct {
	Data           entity.Data       `json:"data,omitempty"`
	Visibility     entity.Visibility `json:"visibility,omitempty"`
	MembershipTier string            `json:"membershipTier,omitempty"`
}

// UpdateEntity writes a new version of a draft entity. A positive
// in.ExpectedVersion is sent as an If-Match header.
func (c *Connection) UpdateEntity(ctx context.Context, id string, in entity.UpdateInput) (*entity.Entity, error) {
	var header http.Header
	if in.ExpectedVersion > 0 {
		header = http.Header{"If-Match": {`"` + strconv.Itoa(in.ExpectedVersion) + `"`}}
	}
	body := updateBody{
		Data:           in.Data,
		Visibility:     in.Visibility,
		MembershipTier: in.MembershipTier,
	}
	var result entity.Entity
	err := c.doJSON(ctx, "PATCH", "/entities/"+url.PathEscape(id), c.Token, header, body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Transition applies a workflow action to an entity. feedback is only
// used by a rejection.
func (c *Connection) Transition(ctx context.Context, id string, action entity.Action, feedback string) (*entity.Entity, error) {
	var body interface{}
	if feedback != "" {
		body = struct {
			Feedback string `json:"feedback"`
		}{feedback}
	}
	path := "/entities/" + url.PathEscape(id) + "/transition/" + string(action)
	var result entity.Entity
	err := c.doJSON(ctx, "POST", path, c.Token, nil, body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Manifest fetches the manifest of a scope. If fingerprint is not empty
// and still current, ErrNotModified is returned.
func (c *Connection) Manifest(ctx context.Context, sc scope.Scope, fingerprint string) (*bundle.Manifest, error) {
	var header http.Header
	if fingerprint != "" {
		header = http.Header{"If-None-Match": {`"` + fingerprint + `"`}}
	}
	var result bundle.Manifest
	err := c.doJSON(ctx, "GET", scopePath("manifest", sc), c.Token, header, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RebuildReport lists what a rebuild wrote, as "scope/type" for bundles
// and the scope alone for manifests.
type RebuildReport struct {
	Bundles   []string `json:"bundles"`
	Manifests []string `json:"manifests"`
	Removed   []string `json:"removed"`
}

// Rebuild asks the server to rebuild every stale bundle. Superadmin only.
func (c *Connection) Rebuild(ctx context.Context) (*RebuildReport, error) {
	var result RebuildReport
	err := c.doJSON(ctx, "POST", "/admin/rebuild", c.Token, nil, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
