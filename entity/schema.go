package entity

import (
	"context"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/store"
)

// FieldType is the editor type of a field. Each maps onto one Kind of Value.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldURL         FieldType = "url"
	FieldEmail       FieldType = "email"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldMultiselect FieldType = "multiselect"
	FieldTags        FieldType = "tags"
)

// Kind returns the kind of Value a field of this type holds, or KindInvalid
// if t is not a known field type.
func (t FieldType) Kind() Kind {
	switch t {
	case FieldText, FieldTextarea, FieldURL, FieldEmail, FieldDate, FieldSelect:
		return KindString
	case FieldNumber:
		return KindNumber
	case FieldBoolean:
		return KindBool
	case FieldMultiselect, FieldTags:
		return KindStringList
	}
	return KindInvalid
}

// Field describes one entry in an entity's data.
type Field struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required,omitempty"`
	Options   []string  `json:"options,omitempty"` // for select and multiselect
	SectionID string    `json:"sectionId,omitempty"`
}

// Section groups fields for display.
type Section struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// EntityType is the schema shared by every entity of one type.
type EntityType struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	PluralName        string     `json:"pluralName"`
	Description       string     `json:"description,omitempty"`
	Fields            []Field    `json:"fields"`
	Sections          []Section  `json:"sections,omitempty"`
	DefaultVisibility Visibility `json:"defaultVisibility"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Field returns the field with the given id.
func (t *EntityType) Field(id string) (Field, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// Check verifies the type definition itself.
func (t *EntityType) Check() error {
	if !keys.ValidID(t.ID) {
		return failure.Validation.New("entity type id %q is not valid", t.ID)
	}
	if strings.TrimSpace(t.Name) == "" {
		return failure.Validation.New("entity type %s needs a name", t.ID)
	}
	if _, ok := ParseVisibility(string(t.DefaultVisibility)); !ok {
		return failure.Validation.New("entity type %s has bad default visibility %q", t.ID, t.DefaultVisibility)
	}
	sections := make(map[string]bool)
	for _, s := range t.Sections {
		if s.ID == "" || sections[s.ID] {
			return failure.Validation.New("entity type %s has a missing or repeated section id %q", t.ID, s.ID)
		}
		sections[s.ID] = true
	}
	seen := make(map[string]bool)
	for _, f := range t.Fields {
		if !keys.ValidID(f.ID) || seen[f.ID] {
			return failure.Validation.New("entity type %s has a bad or repeated field id %q", t.ID, f.ID)
		}
		seen[f.ID] = true
		if f.Type.Kind() == KindInvalid {
			return failure.Validation.New("field %s has unknown type %q", f.ID, f.Type)
		}
		if (f.Type == FieldSelect || f.Type == FieldMultiselect) && len(f.Options) == 0 {
			return failure.Validation.New("field %s needs options", f.ID)
		}
		if f.SectionID != "" && !sections[f.SectionID] {
			return failure.Validation.New("field %s names unknown section %q", f.ID, f.SectionID)
		}
	}
	return nil
}

// Validate checks that every key in data is a field of t and holds the right
// kind of value. It does not check required fields, since a draft may be
// incomplete. See Missing.
func (t *EntityType) Validate(data Data) error {
	var problems []string
	for id, v := range data {
		f, ok := t.Field(id)
		if !ok {
			problems = append(problems, "unknown field "+id)
			continue
		}
		if msg := f.check(v); msg != "" {
			problems = append(problems, id+": "+msg)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return failure.Validation.New("%s", strings.Join(problems, "; "))
	}
	return nil
}

func (f Field) check(v Value) string {
	if v.Kind() != f.Type.Kind() {
		return "expected " + f.Type.Kind().String() + ", got " + v.Kind().String()
	}
	switch f.Type {
	case FieldURL:
		s, _ := v.Str()
		if s == "" {
			break
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "not a web address"
		}
	case FieldEmail:
		s, _ := v.Str()
		if s == "" {
			break
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return "not an email address"
		}
	case FieldDate:
		s, _ := v.Str()
		if s == "" {
			break
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			break
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "not a date"
		}
	case FieldSelect:
		s, _ := v.Str()
		if s != "" && !contains(f.Options, s) {
			return "not one of the options"
		}
	case FieldMultiselect:
		list, _ := v.List()
		for _, s := range list {
			if !contains(f.Options, s) {
				return s + " is not one of the options"
			}
		}
	}
	return ""
}

// Missing returns the ids of the required fields which are absent or empty
// in data.
func (t *EntityType) Missing(data Data) []string {
	var result []string
	for _, f := range t.Fields {
		if f.Required && data[f.ID].IsEmpty() {
			result = append(result, f.ID)
		}
	}
	return result
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// PutType creates or replaces an entity type. Only superadmins may do this.
// The creation time of an existing type is kept.
func (s *Store) PutType(ctx context.Context, actor Principal, t EntityType) (*EntityType, error) {
	if actor.Role != RoleSuperadmin {
		return nil, failure.Forbidden.New("only superadmins may change entity types")
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	now := s.now()
	t.CreatedAt = now
	old, err := s.GetType(ctx, t.ID)
	switch {
	case err == nil:
		t.CreatedAt = old.CreatedAt
	case !failure.NotFound.Has(err):
		return nil, err
	}
	t.UpdatedAt = now
	err = store.PutJSON(ctx, s.s, keys.Type(t.ID), t, nil)
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	if s.Invalidator != nil {
		if err := s.Invalidator.TypeChanged(ctx, t.ID); err != nil {
			s.reportInvalidation(err, t.ID)
		}
	}
	return &t, nil
}

// GetType returns the entity type with the given id.
func (s *Store) GetType(ctx context.Context, id string) (*EntityType, error) {
	if !keys.ValidID(id) {
		return nil, failure.NotFound.New("entity type %q", id)
	}
	var t EntityType
	err := store.GetJSON(ctx, s.s, keys.Type(id), &t)
	if err != nil {
		return nil, failure.Storage(err, "entity type "+id)
	}
	return &t, nil
}

// ListTypes returns the entity types sorted by id. Inactive types are
// skipped unless includeInactive is set.
func (s *Store) ListTypes(ctx context.Context, includeInactive bool) ([]*EntityType, error) {
	names, err := s.s.List(ctx, keys.TypePrefix)
	if err != nil {
		return nil, failure.StorageUnavailable.Wrap(err)
	}
	var result []*EntityType
	for _, name := range names {
		id, ok := keys.TypeID(name)
		if !ok {
			continue
		}
		t, err := s.GetType(ctx, id)
		if failure.NotFound.Has(err) {
			continue // deleted since the listing
		}
		if err != nil {
			return nil, err
		}
		if t.Active || includeInactive {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
