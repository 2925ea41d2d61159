// futil inspects and maintains a folio object store directly, without going
// through a server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/store"
)

var usage = `
futil [-s location] <command> <command arguments>

Possible commands:
    entity <entity id list>

    versions <entity id>

    list <type id> [<organization id>]

    types

    load-types <json file list>

    stale

    rebuild

    manifest <scope>
`

// the principal futil acts as
var operator = entity.Principal{UserID: "futil", Role: entity.RoleSuperadmin}

type tool struct {
	entities *entity.Store
	builder  *bundle.Builder
	out      io.Writer
}

func newTool(s store.Store, out io.Writer) *tool {
	t := &tool{entities: entity.New(s), out: out}
	t.builder = bundle.NewBuilder(t.entities, s)
	t.entities.Invalidator = t.builder
	return t
}

func main() {
	flags := pflag.NewFlagSet("futil", pflag.ExitOnError)
	location := flags.StringP("store", "s", ".", "location of the object store")
	verbose := flags.BoolP("verbose", "v", false, "log every store operation")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flags.Parse(os.Args[1:])

	s, err := store.Open(*location, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *verbose {
		log, _ := zap.NewDevelopment()
		s = store.NewLogger(log, s)
	}
	fmt.Fprintf(os.Stderr, "Using store %s\n", *location)

	args := flags.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return
	}
	err = newTool(s, os.Stdout).do(context.Background(), args[0], args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (t *tool) do(ctx context.Context, command string, args []string) error {
	switch command {
	case "entity":
		return t.doentity(ctx, args)
	case "versions":
		if len(args) != 1 {
			return fmt.Errorf("versions needs one entity id")
		}
		return t.doversions(ctx, args[0])
	case "list":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("list needs a type id and an optional organization")
		}
		org := ""
		if len(args) == 2 {
			org = args[1]
		}
		return t.dolist(ctx, args[0], org)
	case "types":
		return t.dotypes(ctx)
	case "load-types":
		return t.doloadtypes(ctx, args)
	case "stale":
		return t.dostale(ctx)
	case "rebuild":
		return t.dorebuild(ctx)
	case "manifest":
		if len(args) != 1 {
			return fmt.Errorf("manifest needs a scope")
		}
		return t.domanifest(ctx, args[0])
	}
	return fmt.Errorf("unknown command %q", command)
}

func (t *tool) doentity(ctx context.Context, ids []string) error {
	for _, id := range ids {
		e, err := t.entities.Get(ctx, id, 0)
		if err != nil {
			fmt.Fprintf(t.out, "%s: Error %s\n", id, err)
			continue
		}
		printentity(t.out, e)
	}
	return nil
}

func printentity(out io.Writer, e *entity.Entity) {
	w := tabwriter.NewWriter(out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Entity:\t%s\n", e.ID)
	fmt.Fprintf(w, "Type:\t%s\n", e.EntityTypeID)
	fmt.Fprintf(w, "Organization:\t%s\n", e.OrganizationID)
	fmt.Fprintf(w, "Version:\t%d\n", e.Version)
	fmt.Fprintf(w, "Status:\t%s\n", e.Status)
	fmt.Fprintf(w, "Visibility:\t%s\n", e.Visibility)
	fmt.Fprintf(w, "Slug:\t%s\n", e.Slug)
	fmt.Fprintf(w, "Updated:\t%v by %s\n", e.UpdatedAt, e.UpdatedBy)
	for _, k := range e.Data.Keys() {
		fmt.Fprintf(w, "  %s:\t%s\n", k, e.Data[k])
	}
	if e.Feedback != "" {
		fmt.Fprintf(w, "Feedback:\t%s\n", e.Feedback)
	}
	w.Flush()
}

func (t *tool) doversions(ctx context.Context, id string) error {
	versions, err := t.entities.Versions(ctx, id)
	if err != nil {
		return err
	}
	for _, v := range versions {
		e, err := t.entities.Get(ctx, id, v)
		if err != nil {
			fmt.Fprintf(t.out, "%5d  Error %s\n", v, err)
			continue
		}
		fmt.Fprintf(t.out, "%5d  %-9s  %v  %s\n", v, e.Status, e.UpdatedAt, e.UpdatedBy)
	}
	return nil
}

func (t *tool) dolist(ctx context.Context, typeID, org string) error {
	all, err := t.entities.Scan(ctx, org, typeID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(t.out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tOrganization\tVersion\tStatus\tSlug\n")
	for _, e := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.OrganizationID, e.Version, e.Status, e.Slug)
	}
	return w.Flush()
}

func (t *tool) dotypes(ctx context.Context) error {
	types, err := t.entities.ListTypes(ctx, true)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(t.out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tName\tFields\tActive\n")
	for _, et := range types {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", et.ID, et.Name, len(et.Fields), strconv.FormatBool(et.Active))
	}
	return w.Flush()
}

// doloadtypes reads entity types from JSON files. A file may hold one type
// or an array of them.
func (t *tool) doloadtypes(ctx context.Context, files []string) error {
	for _, name := range files {
		data, err := ioutil.ReadFile(name)
		if err != nil {
			return err
		}
		var types []entity.EntityType
		if err := json.Unmarshal(data, &types); err != nil {
			var one entity.EntityType
			if err := json.Unmarshal(data, &one); err != nil {
				return fmt.Errorf("%s: %s", name, err)
			}
			types = append(types, one)
		}
		for _, et := range types {
			result, err := t.entities.PutType(ctx, operator, et)
			if err != nil {
				return fmt.Errorf("%s: %s: %s", name, et.ID, err)
			}
			fmt.Fprintf(t.out, "Loaded %s (%d fields)\n", result.ID, len(result.Fields))
		}
	}
	return nil
}

func (t *tool) dostale(ctx context.Context) error {
	targets, err := t.builder.Stale(ctx)
	if err != nil {
		return err
	}
	for _, target := range targets {
		fmt.Fprintf(t.out, "%s\t%s\n", target.Scope, target.EntityTypeID)
	}
	return nil
}

func (t *tool) dorebuild(ctx context.Context) error {
	report, err := t.builder.RebuildStale(ctx)
	if report != nil {
		for _, target := range report.Bundles {
			fmt.Fprintf(t.out, "bundle   %s\t%s\n", target.Scope, target.EntityTypeID)
		}
		for _, target := range report.Removed {
			fmt.Fprintf(t.out, "removed  %s\t%s\n", target.Scope, target.EntityTypeID)
		}
		for _, sc := range report.Manifests {
			fmt.Fprintf(t.out, "manifest %s\n", sc)
		}
	}
	return err
}

func (t *tool) domanifest(ctx context.Context, name string) error {
	sc, err := scope.Parse(name)
	if err != nil {
		return err
	}
	m, err := t.builder.BuildManifest(ctx, sc)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(t.out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Scope:\t%s\n", m.Scope)
	fmt.Fprintf(w, "Fingerprint:\t%s\n", m.Fingerprint)
	for _, s := range m.EntityTypes {
		fmt.Fprintf(w, "  %s\t%d\t%s\n", s.ID, s.EntityCount, s.BundleFingerprint)
	}
	return w.Flush()
}
