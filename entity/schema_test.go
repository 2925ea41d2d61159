package entity

import (
	"testing"

	"github.com/ndlib/folio/failure"
)

func TestTypeCheck(t *testing.T) {
	var table = []struct {
		change func(*EntityType)
		ok     bool
	}{
		{func(t *EntityType) {}, true},
		{func(t *EntityType) { t.ID = "Event" }, false},
		{func(t *EntityType) { t.Name = " " }, false},
		{func(t *EntityType) { t.DefaultVisibility = "secret" }, false},
		{func(t *EntityType) { t.Fields = append(t.Fields, Field{ID: "name", Type: FieldText}) }, false},
		{func(t *EntityType) { t.Fields = append(t.Fields, Field{ID: "x", Type: "color"}) }, false},
		{func(t *EntityType) { t.Fields = append(t.Fields, Field{ID: "x", Type: FieldSelect}) }, false},
		{func(t *EntityType) { t.Fields = append(t.Fields, Field{ID: "x", Type: FieldText, SectionID: "nope"}) }, false},
		{func(t *EntityType) { t.Sections = append(t.Sections, Section{ID: "main"}) }, false},
	}
	for i, row := range table {
		et := eventType()
		row.change(&et)
		err := et.Check()
		if (err == nil) != row.ok {
			t.Errorf("%d: Check returned %v", i, err)
		}
		if err != nil && !failure.Validation.Has(err) {
			t.Errorf("%d: Check returned %v, expected a validation error", i, err)
		}
	}
}

func TestValidate(t *testing.T) {
	et := eventType()
	var table = []struct {
		data Data
		ok   bool
	}{
		{Data{"name": StringValue("Foo")}, true},
		{Data{}, true},
		{Data{"name": NumberValue(1)}, false},
		{Data{"unknown": StringValue("x")}, false},
		{Data{"capacity": NumberValue(20), "free": BoolValue(true)}, true},
		{Data{"free": StringValue("yes")}, false},
		{Data{"tags": ListValue("a", "b")}, true},
		{Data{"tags": StringValue("a")}, false},
		{Data{"category": StringValue("talk")}, true},
		{Data{"category": StringValue("party")}, false},
		{Data{"site": StringValue("https://example.org/x")}, true},
		{Data{"site": StringValue("example.org")}, false},
		{Data{"site": StringValue("")}, true},
	}
	for _, row := range table {
		err := et.Validate(row.data)
		if (err == nil) != row.ok {
			t.Errorf("Validate(%v) returned %v", row.data, err)
		}
	}
}

func TestFieldFormats(t *testing.T) {
	var table = []struct {
		field Field
		value Value
		ok    bool
	}{
		{Field{Type: FieldEmail}, StringValue("a@example.org"), true},
		{Field{Type: FieldEmail}, StringValue("not an address"), false},
		{Field{Type: FieldDate}, StringValue("2024-02-29"), true},
		{Field{Type: FieldDate}, StringValue("2024-02-30"), false},
		{Field{Type: FieldDate}, StringValue("2024-02-01T10:00:00Z"), true},
		{Field{Type: FieldMultiselect, Options: []string{"x", "y"}}, ListValue("x", "y"), true},
		{Field{Type: FieldMultiselect, Options: []string{"x", "y"}}, ListValue("z"), false},
	}
	for _, row := range table {
		msg := row.field.check(row.value)
		if (msg == "") != row.ok {
			t.Errorf("%s %v: got %q", row.field.Type, row.value, msg)
		}
	}
}

func TestMissing(t *testing.T) {
	et := eventType()
	missing := et.Missing(Data{"summary": StringValue("x")})
	if len(missing) != 1 || missing[0] != "name" {
		t.Errorf("Got %v, expected [name]", missing)
	}
	missing = et.Missing(Data{"name": StringValue("  ")})
	if len(missing) != 1 {
		t.Errorf("blank name not reported missing")
	}
	missing = et.Missing(Data{"name": StringValue("Foo")})
	if len(missing) != 0 {
		t.Errorf("Got %v, expected nothing", missing)
	}
}

func TestSlug(t *testing.T) {
	var table = []struct {
		data Data
		slug string
	}{
		{Data{"name": StringValue("Spring Fling 2024!")}, "spring-fling-2024"},
		{Data{"title": StringValue("  Hello,   World ")}, "hello-world"},
		{Data{"slug": StringValue("custom"), "name": StringValue("Other")}, "custom"},
		{Data{"name": StringValue("!!!")}, "abc1234"},
		{Data{}, "abc1234"},
	}
	for _, row := range table {
		slug := slugFor(row.data, "abc1234")
		if slug != row.slug {
			t.Errorf("Got %s, expected %s", slug, row.slug)
		}
	}
}
