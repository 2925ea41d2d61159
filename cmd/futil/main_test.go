package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/store"
)

const types = `[
	{"id": "event", "name": "Event", "pluralName": "Events",
	 "fields": [{"id": "name", "label": "Name", "type": "text"}],
	 "defaultVisibility": "public", "active": true},
	{"id": "venue", "name": "Venue", "pluralName": "Venues",
	 "fields": [], "defaultVisibility": "platform", "active": false}
]`

func TestCommands(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	tl := newTool(store.NewMemory(), &out)

	fname := filepath.Join(t.TempDir(), "types.json")
	require.NoError(t, ioutil.WriteFile(fname, []byte(types), 0644))
	require.NoError(t, tl.do(ctx, "load-types", []string{fname}))
	assert.Contains(t, out.String(), "Loaded event (1 fields)")
	assert.Contains(t, out.String(), "Loaded venue (0 fields)")

	out.Reset()
	require.NoError(t, tl.do(ctx, "types", nil))
	assert.Contains(t, out.String(), "venue")

	e, err := tl.entities.Create(ctx, operator, entity.CreateInput{
		EntityTypeID:   "event",
		OrganizationID: "acme",
		Data:           entity.Data{"name": entity.StringValue("Foo Fest")},
	})
	require.NoError(t, err)
	for _, a := range []entity.Action{entity.ActionSubmit, entity.ActionApprove} {
		_, err = tl.entities.Transition(ctx, operator, e.ID, a, "")
		require.NoError(t, err)
	}

	out.Reset()
	require.NoError(t, tl.do(ctx, "entity", []string{e.ID, "missing"}))
	assert.Contains(t, out.String(), "foo-fest")
	assert.Contains(t, out.String(), "published")
	assert.Contains(t, out.String(), "missing: Error")

	out.Reset()
	require.NoError(t, tl.do(ctx, "versions", []string{e.ID}))
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))

	out.Reset()
	require.NoError(t, tl.do(ctx, "list", []string{"event"}))
	assert.Contains(t, out.String(), e.ID)

	out.Reset()
	require.NoError(t, tl.do(ctx, "stale", nil))
	assert.Contains(t, out.String(), "public\tevent")

	out.Reset()
	require.NoError(t, tl.do(ctx, "rebuild", nil))
	assert.Contains(t, out.String(), "manifest public")

	out.Reset()
	require.NoError(t, tl.do(ctx, "stale", nil))
	assert.Empty(t, out.String())

	out.Reset()
	require.NoError(t, tl.do(ctx, "manifest", []string{"public"}))
	assert.Contains(t, out.String(), "event")
	assert.NotContains(t, out.String(), "venue")

	assert.Error(t, tl.do(ctx, "manifest", []string{"nonsense"}))
	assert.Error(t, tl.do(ctx, "versions", nil))
	assert.Error(t, tl.do(ctx, "frobnicate", nil))
}
