package entity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/scope"
)

// Scan returns the latest version of every entity matching the type and
// organization. Either may be empty to match any. No permission checks are
// made. The result is sorted by id.
//
// Scan lists the pointer keys and reads each pointer and snapshot, so its
// cost grows with the number of entities under the prefix.
func (s *Store) Scan(ctx context.Context, orgID, typeID string) ([]*Entity, error) {
	var result []*Entity
	for _, prefix := range keys.EntityPrefixes(orgID, typeID) {
		names, err := s.s.List(ctx, prefix)
		if err != nil {
			return nil, failure.StorageUnavailable.Wrap(err)
		}
		for _, name := range names {
			org, t, id, ok := keys.ParseLatest(name)
			if !ok || (typeID != "" && t != typeID) || (orgID != "" && org != orgID) {
				continue
			}
			e, err := s.latest(ctx, org, t, id)
			if failure.NotFound.Has(err) {
				// purged between the listing and the read
				continue
			}
			if err != nil {
				return nil, err
			}
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListOptions filters and orders a List.
type ListOptions struct {
	EntityTypeID   string
	OrganizationID string
	Status         Status
	Search         string // case insensitive substring of any text value or the slug

	Page     int    // 1 based
	PageSize int    // default 20, at most 200
	Sort     string // updatedAt, createdAt, name or version; prefix - for descending
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	DefaultSort     = "-updatedAt"
)

// ListItem is the summary of an entity returned by List.
type ListItem struct {
	ID             string     `json:"id"`
	EntityTypeID   string     `json:"entityTypeId"`
	OrganizationID string     `json:"organizationId,omitempty"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Status         Status     `json:"status"`
	Visibility     Visibility `json:"visibility"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Page is one page of a List.
type Page struct {
	Items    []ListItem `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// List returns the entities actor may see matching the options. Filtering,
// sorting and paging happen in memory after a Scan.
func (s *Store) List(ctx context.Context, actor Principal, opts ListOptions) (*Page, error) {
	if opts.EntityTypeID != "" && !keys.ValidID(opts.EntityTypeID) {
		return nil, failure.Validation.New("entity type id %q is not valid", opts.EntityTypeID)
	}
	if opts.OrganizationID != "" && !scope.ValidID(opts.OrganizationID) {
		return nil, failure.Validation.New("organization id %q is not valid", opts.OrganizationID)
	}
	if opts.Status != "" {
		if _, ok := ParseStatus(string(opts.Status)); !ok {
			return nil, failure.Validation.New("unknown status %q", opts.Status)
		}
	}
	less, err := sorter(opts.Sort)
	if err != nil {
		return nil, err
	}
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Page < 1 || opts.PageSize < 1 || opts.PageSize > MaxPageSize {
		return nil, failure.Validation.New("page %d of size %d is not valid", opts.Page, opts.PageSize)
	}

	all, err := s.Scan(ctx, opts.OrganizationID, opts.EntityTypeID)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	var matched []*Entity
	for _, e := range all {
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		if search != "" && !matches(e, search) {
			continue
		}
		if !s.Policy.CanView(actor, e) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	result := &Page{
		Items:    []ListItem{},
		Total:    len(matched),
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
	start := (opts.Page - 1) * opts.PageSize
	for i := start; i < len(matched) && i < start+opts.PageSize; i++ {
		result.Items = append(result.Items, summarize(matched[i]))
	}
	return result, nil
}

func summarize(e *Entity) ListItem {
	return ListItem{
		ID:             e.ID,
		EntityTypeID:   e.EntityTypeID,
		OrganizationID: e.OrganizationID,
		Name:           displayName(e),
		Slug:           e.Slug,
		Status:         e.Status,
		Visibility:     e.Visibility,
		Version:        e.Version,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func displayName(e *Entity) string {
	if name := e.Data.String("name"); name != "" {
		return name
	}
	if title := e.Data.String("title"); title != "" {
		return title
	}
	return e.Slug
}

func matches(e *Entity, search string) bool {
	if strings.Contains(e.Slug, search) {
		return true
	}
	for _, v := range e.Data {
		switch v.Kind() {
		case KindString, KindStringList:
			if strings.Contains(strings.ToLower(v.Text()), search) {
				return true
			}
		}
	}
	return false
}

// sorter returns the comparison for a sort key. Ties are broken by id so
// pages are stable.
func sorter(key string) (func(a, b *Entity) bool, error) {
	if key == "" {
		key = DefaultSort
	}
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	var cmp func(a, b *Entity) int
	switch key {
	case "updatedAt":
		cmp = func(a, b *Entity) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case "createdAt":
		cmp = func(a, b *Entity) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "name":
		cmp = func(a, b *Entity) int {
			return strings.Compare(strings.ToLower(displayName(a)), strings.ToLower(displayName(b)))
		}
	case "version":
		cmp = func(a, b *Entity) int { return a.Version - b.Version }
	default:
		return nil, failure.Validation.New("cannot sort by %q", key)
	}
	return func(a, b *Entity) bool {
		c := cmp(a, b)
		if desc {
			c = -c
		}
		if c == 0 {
			return a.ID < b.ID
		}
		return c < 0
	}, nil
}
