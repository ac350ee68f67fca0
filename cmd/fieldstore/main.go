package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/fieldstore/fieldstore/fieldstore"
	"github.com/fieldstore/fieldstore/fieldstore/ops"
	"github.com/fieldstore/fieldstore/fieldstore/storage"
	"github.com/fieldstore/fieldstore/fieldstore/storage/postgres"
	"github.com/fieldstore/fieldstore/fieldstore/storage/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	ctx := context.Background()

	switch command {
	case "init":
		handleInit(ctx, os.Args[2:])
	case "blueprint":
		if len(os.Args) < 3 {
			fmt.Println("Usage: fieldstore blueprint <create|list|show|delete>")
			os.Exit(1)
		}
		handleBlueprint(ctx, os.Args[2:])
	case "path":
		if len(os.Args) < 3 {
			fmt.Println("Usage: fieldstore path <add|update|delete>")
			os.Exit(1)
		}
		handlePath(ctx, os.Args[2:])
	case "attach":
		handleAttach(ctx, os.Args[2:])
	case "detach":
		handleDetach(ctx, os.Args[2:])
	case "embed":
		handleEmbed(ctx, os.Args[2:])
	case "put":
		handlePut(ctx, os.Args[2:])
	case "get":
		handleGet(ctx, os.Args[2:])
	case "delete":
		handleDelete(ctx, os.Args[2:])
	case "find":
		handleFind(ctx, os.Args[2:])
	case "reindex":
		handleReindex(ctx, os.Args[2:])
	case "compact":
		handleCompact(ctx, os.Args[2:])
	case "optimize":
		handleOptimize(ctx, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("fieldstore - blueprint composition and document indexing")
	fmt.Println("\nUsage:")
	fmt.Println("  fieldstore init -s <store> [--backend sqlite|postgres] [--schema-name <name>]")
	fmt.Println("  fieldstore blueprint create -s <store> --name <name> [--kind full|component]")
	fmt.Println("  fieldstore blueprint list -s <store>")
	fmt.Println("  fieldstore blueprint show -s <store> --name <name>")
	fmt.Println("  fieldstore blueprint delete -s <store> --name <name>")
	fmt.Println("  fieldstore path add -s <store> --blueprint <name> --name <field> --type <type> [--parent <full.path>] [--many] [--indexed] [--required]")
	fmt.Println("  fieldstore path update -s <store> --blueprint <name> --path <full.path> [--name <new>] [--type <type>] [--indexed=true|false]")
	fmt.Println("  fieldstore path delete -s <store> --blueprint <name> --path <full.path>")
	fmt.Println("  fieldstore attach -s <store> --host <name> --component <name> --prefix <prefix>")
	fmt.Println("  fieldstore detach -s <store> --host <name> --component <name>")
	fmt.Println("  fieldstore embed -s <store> --blueprint <name> --path <full.path> --target <name|none>")
	fmt.Println("  fieldstore put -s <store> --blueprint <name> [--id <id>] --json <doc>")
	fmt.Println("  fieldstore get -s <store> --id <id>")
	fmt.Println("  fieldstore delete -s <store> --id <id>")
	fmt.Println("  fieldstore find -s <store> --blueprint <name> --path <full.path> --op eq|ne|lt|le|gt|ge --value <v>")
	fmt.Println("  fieldstore reindex -s <store> --blueprint <name>")
	fmt.Println("  fieldstore compact -s <store>")
	fmt.Println("  fieldstore optimize -s <store>")
	fmt.Println("\nBackends:")
	fmt.Println("  sqlite   - SQLite file database (default; --driver sqlite or sqlite3)")
	fmt.Println("  postgres - PostgreSQL database (-s is the connection string)")
	fmt.Println("Use --schema-name to pick the PostgreSQL schema (defaults to 'fieldstore')")
}

// commonFlags registers the flags every subcommand shares.
type commonFlags struct {
	store      *string
	backend    *string
	schemaName *string
	driver     *string
	verbose    *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		store:      fs.String("s", "", "store path or connection string (required)"),
		backend:    fs.String("backend", "sqlite", "backend: sqlite or postgres"),
		schemaName: fs.String("schema-name", "", "PostgreSQL schema name (default: fieldstore)"),
		driver:     fs.String("driver", "sqlite", "sqlite driver: sqlite (modernc) or sqlite3 (mattn)"),
		verbose:    fs.Bool("v", false, "log engine activity to stderr"),
	}
}

func (c commonFlags) adapter() storage.Adapter {
	switch *c.backend {
	case "postgres", "pg":
		name := *c.schemaName
		if name == "" {
			name = "fieldstore"
		}
		return postgres.New(*c.store, name)
	default:
		return sqlite.NewWithDriver(*c.store, *c.driver)
	}
}

func (c commonFlags) options() fieldstore.Options {
	opts := fieldstore.DefaultOptions()
	if *c.verbose {
		opts.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return opts
}

func (c commonFlags) open(ctx context.Context) *fieldstore.Engine {
	if *c.store == "" {
		fmt.Println("-s is required")
		os.Exit(1)
	}
	engine, err := fieldstore.Open(ctx, c.adapter(), c.options())
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	return engine
}

func mustBlueprint(ctx context.Context, engine *fieldstore.Engine, name string) *fieldstore.Blueprint {
	b, err := engine.GetBlueprintByName(ctx, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return b
}

func reportCascade(res *fieldstore.CascadeResult) {
	if res == nil {
		return
	}
	fmt.Printf("Cascade visited %d blueprint(s), %d scheduled for reindex\n", len(res.Visited), len(res.Reindex))
	for _, f := range res.Failures {
		fmt.Printf("  failed to rematerialize blueprint %d: %v\n", f.BlueprintID, f.Err)
	}
}

func handleInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	if *cf.store == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine, err := fieldstore.Create(ctx, cf.adapter(), cf.options())
	if err != nil {
		fmt.Printf("Error creating store: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("Created store: %s\n", *cf.store)
}

func handleBlueprint(ctx context.Context, args []string) {
	subcmd := args[0]

	switch subcmd {
	case "create":
		fs := flag.NewFlagSet("blueprint create", flag.ExitOnError)
		cf := registerCommon(fs)
		name := fs.String("name", "", "blueprint name (required)")
		kind := fs.String("kind", "full", "blueprint kind: full or component")
		fs.Parse(args[1:])

		if *name == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b, err := engine.CreateBlueprint(ctx, *name, fieldstore.BlueprintKind(*kind))
		if err != nil {
			fmt.Printf("Error creating blueprint: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created blueprint %s (id=%d, kind=%s)\n", b.Name, b.ID, b.Kind)

	case "list":
		fs := flag.NewFlagSet("blueprint list", flag.ExitOnError)
		cf := registerCommon(fs)
		fs.Parse(args[1:])

		engine := cf.open(ctx)
		defer engine.Close()

		blueprints, err := engine.ListBlueprints(ctx)
		if err != nil {
			fmt.Printf("Error listing blueprints: %v\n", err)
			os.Exit(1)
		}
		for _, b := range blueprints {
			fmt.Printf("%d\t%s\t%s\n", b.ID, b.Name, b.Kind)
		}

	case "show":
		fs := flag.NewFlagSet("blueprint show", flag.ExitOnError)
		cf := registerCommon(fs)
		name := fs.String("name", "", "blueprint name (required)")
		fs.Parse(args[1:])

		if *name == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b := mustBlueprint(ctx, engine, *name)
		paths, err := engine.ResolvedPaths(ctx, b.ID)
		if err != nil {
			fmt.Printf("Error loading paths: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Blueprint: %s (id=%d, kind=%s)\n", b.Name, b.ID, b.Kind)
		for _, p := range paths {
			marks := ""
			if p.Indexed {
				marks += " indexed"
			}
			if p.Required {
				marks += " required"
			}
			if p.Cardinality == fieldstore.Many {
				marks += " many"
			}
			if p.Materialized() {
				marks += " (copy)"
			}
			fmt.Printf("  %s\t%s%s\n", p.FullPath, p.DataType, marks)
		}

		attachments, err := engine.ListAttachments(ctx, b.ID)
		if err != nil {
			fmt.Printf("Error loading attachments: %v\n", err)
			os.Exit(1)
		}
		for _, a := range attachments {
			fmt.Printf("  component %d attached at %q\n", a.ComponentID, a.PathPrefix)
		}

	case "delete":
		fs := flag.NewFlagSet("blueprint delete", flag.ExitOnError)
		cf := registerCommon(fs)
		name := fs.String("name", "", "blueprint name (required)")
		fs.Parse(args[1:])

		if *name == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b := mustBlueprint(ctx, engine, *name)
		if err := engine.DeleteBlueprint(ctx, b.ID); err != nil {
			fmt.Printf("Error deleting blueprint: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted blueprint %s\n", *name)

	default:
		fmt.Printf("Unknown blueprint command: %s\n", subcmd)
		os.Exit(1)
	}
}

func handlePath(ctx context.Context, args []string) {
	subcmd := args[0]

	switch subcmd {
	case "add":
		fs := flag.NewFlagSet("path add", flag.ExitOnError)
		cf := registerCommon(fs)
		blueprint := fs.String("blueprint", "", "blueprint name (required)")
		name := fs.String("name", "", "field name (required)")
		dataType := fs.String("type", "", "data type (required)")
		parent := fs.String("parent", "", "parent full path")
		many := fs.Bool("many", false, "cardinality many")
		indexed := fs.Bool("indexed", false, "project into the index")
		required := fs.Bool("required", false, "mark as required")
		rules := fs.String("rules", "", "validation rules JSON")
		fs.Parse(args[1:])

		if *blueprint == "" || *name == "" || *dataType == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b := mustBlueprint(ctx, engine, *blueprint)
		in := fieldstore.PathInput{
			BlueprintID: b.ID,
			Name:        *name,
			DataType:    fieldstore.DataType(*dataType),
			Cardinality: fieldstore.One,
			Indexed:     *indexed,
			Required:    *required,
		}
		if *many {
			in.Cardinality = fieldstore.Many
		}
		if *rules != "" {
			in.ValidationRules = rules
		}
		if *parent != "" {
			pp, err := engine.FindPath(ctx, b.ID, *parent)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			in.ParentID = &pp.ID
		}

		p, err := engine.CreatePath(ctx, in)
		if err != nil {
			fmt.Printf("Error adding path: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added path %s (id=%d)\n", p.FullPath, p.ID)

	case "update":
		fs := flag.NewFlagSet("path update", flag.ExitOnError)
		cf := registerCommon(fs)
		blueprint := fs.String("blueprint", "", "blueprint name (required)")
		path := fs.String("path", "", "full path (required)")
		name := fs.String("name", "", "new field name")
		dataType := fs.String("type", "", "new data type")
		indexed := fs.String("indexed", "", "true or false")
		required := fs.String("required", "", "true or false")
		fs.Parse(args[1:])

		if *blueprint == "" || *path == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b := mustBlueprint(ctx, engine, *blueprint)
		p, err := engine.FindPath(ctx, b.ID, *path)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		var upd fieldstore.PathUpdate
		if *name != "" {
			upd.Name = name
		}
		if *dataType != "" {
			t := fieldstore.DataType(*dataType)
			upd.DataType = &t
		}
		if *indexed != "" {
			v, err := strconv.ParseBool(*indexed)
			if err != nil {
				fmt.Printf("Invalid --indexed %q\n", *indexed)
				os.Exit(1)
			}
			upd.Indexed = &v
		}
		if *required != "" {
			v, err := strconv.ParseBool(*required)
			if err != nil {
				fmt.Printf("Invalid --required %q\n", *required)
				os.Exit(1)
			}
			upd.Required = &v
		}

		updated, err := engine.UpdatePath(ctx, p.ID, upd)
		if err != nil {
			fmt.Printf("Error updating path: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated path %s\n", updated.FullPath)

	case "delete":
		fs := flag.NewFlagSet("path delete", flag.ExitOnError)
		cf := registerCommon(fs)
		blueprint := fs.String("blueprint", "", "blueprint name (required)")
		path := fs.String("path", "", "full path (required)")
		fs.Parse(args[1:])

		if *blueprint == "" || *path == "" {
			fs.Usage()
			os.Exit(1)
		}

		engine := cf.open(ctx)
		defer engine.Close()

		b := mustBlueprint(ctx, engine, *blueprint)
		p, err := engine.FindPath(ctx, b.ID, *path)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.DeletePath(ctx, p.ID)
		if err != nil {
			fmt.Printf("Error deleting path: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted path %s\n", *path)
		reportCascade(res)

	default:
		fmt.Printf("Unknown path command: %s\n", subcmd)
		os.Exit(1)
	}
}

func handleAttach(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	cf := registerCommon(fs)
	host := fs.String("host", "", "host blueprint name (required)")
	component := fs.String("component", "", "component blueprint name (required)")
	prefix := fs.String("prefix", "", "path prefix (required)")
	fs.Parse(args)

	if *host == "" || *component == "" || *prefix == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	h := mustBlueprint(ctx, engine, *host)
	c := mustBlueprint(ctx, engine, *component)
	res, err := engine.AttachComponent(ctx, h.ID, c.ID, *prefix)
	if err != nil {
		fmt.Printf("Error attaching component: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Attached %s to %s at %q\n", *component, *host, *prefix)
	reportCascade(res)
}

func handleDetach(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("detach", flag.ExitOnError)
	cf := registerCommon(fs)
	host := fs.String("host", "", "host blueprint name (required)")
	component := fs.String("component", "", "component blueprint name (required)")
	fs.Parse(args)

	if *host == "" || *component == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	h := mustBlueprint(ctx, engine, *host)
	c := mustBlueprint(ctx, engine, *component)
	res, err := engine.DetachComponent(ctx, h.ID, c.ID)
	if err != nil {
		fmt.Printf("Error detaching component: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Detached %s from %s\n", *component, *host)
	reportCascade(res)
}

func handleEmbed(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	cf := registerCommon(fs)
	blueprint := fs.String("blueprint", "", "blueprint name (required)")
	path := fs.String("path", "", "blueprint-typed full path (required)")
	target := fs.String("target", "", "target blueprint name, or 'none' to clear (required)")
	fs.Parse(args)

	if *blueprint == "" || *path == "" || *target == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	b := mustBlueprint(ctx, engine, *blueprint)
	p, err := engine.FindPath(ctx, b.ID, *path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var res *fieldstore.CascadeResult
	if *target == "none" {
		res, err = engine.ClearEmbeddedBlueprint(ctx, p.ID)
		if err != nil {
			fmt.Printf("Error clearing embedding: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared embedding at %s\n", *path)
	} else {
		t := mustBlueprint(ctx, engine, *target)
		res, err = engine.SetEmbeddedBlueprint(ctx, p.ID, t.ID)
		if err != nil {
			fmt.Printf("Error setting embedding: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Embedded %s at %s\n", *target, *path)
	}
	reportCascade(res)
}

func handlePut(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	cf := registerCommon(fs)
	blueprint := fs.String("blueprint", "", "blueprint name (required)")
	id := fs.String("id", "", "entry id (generated when empty)")
	doc := fs.String("json", "", "document JSON (required)")
	fs.Parse(args)

	if *blueprint == "" || *doc == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	b := mustBlueprint(ctx, engine, *blueprint)

	var entry *fieldstore.Entry
	var skipped []ops.SkippedField
	var err error
	if *id != "" {
		if _, getErr := engine.GetEntry(ctx, *id); getErr == nil {
			entry, skipped, err = engine.UpdateEntry(ctx, *id, []byte(*doc))
		} else {
			entry, skipped, err = engine.PutEntry(ctx, b.ID, *id, []byte(*doc))
		}
	} else {
		entry, skipped, err = engine.PutEntry(ctx, b.ID, "", []byte(*doc))
	}
	if err != nil {
		fmt.Printf("Error putting entry: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Put entry: %s\n", entry.ID)
	for _, s := range skipped {
		fmt.Printf("  skipped %s: %v\n", s.FullPath, s.Err)
	}
}

func handleGet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	cf := registerCommon(fs)
	id := fs.String("id", "", "entry id (required)")
	fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	entry, err := engine.GetEntry(ctx, *id)
	if err != nil {
		if fieldstore.IsKind(err, fieldstore.ErrNotFound) {
			fmt.Printf("Entry not found: %s\n", *id)
			os.Exit(1)
		}
		fmt.Printf("Error getting entry: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Entry: %s (blueprint=%d)\n", entry.ID, entry.BlueprintID)
	fmt.Printf("Created: %d\nUpdated: %d\n", entry.CreatedAtMS, entry.UpdatedAtMS)

	var obj any
	if err := json.Unmarshal(entry.Payload, &obj); err == nil {
		pretty, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Printf("\n%s\n", string(pretty))
	} else {
		fmt.Printf("\n%s\n", string(entry.Payload))
	}
}

func handleDelete(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := registerCommon(fs)
	id := fs.String("id", "", "entry id (required)")
	fs.Parse(args)

	if *id == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	if err := engine.DeleteEntry(ctx, *id); err != nil {
		if fieldstore.IsKind(err, fieldstore.ErrNotFound) {
			fmt.Printf("Entry not found: %s\n", *id)
			os.Exit(1)
		}
		fmt.Printf("Error deleting entry: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted: %s\n", *id)
}

func handleFind(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	cf := registerCommon(fs)
	blueprint := fs.String("blueprint", "", "blueprint name (required)")
	path := fs.String("path", "", "indexed full path (required)")
	op := fs.String("op", "eq", "operator: eq, ne, lt, le, gt, ge")
	value := fs.String("value", "", "comparison value (required)")
	fs.Parse(args)

	if *blueprint == "" || *path == "" || *value == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	b := mustBlueprint(ctx, engine, *blueprint)
	ids, err := engine.Find(ctx, b.ID, *path, ops.Op(*op), parseValue(*value))
	if err != nil {
		fmt.Printf("Error searching: %v\n", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Printf("--- %d result(s) ---\n", len(ids))
}

// parseValue guesses the literal type of a CLI value: number, bool, else
// string. Typed coercion against the path happens inside the engine.
func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
		return b
	}
	return s
}

func handleReindex(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	cf := registerCommon(fs)
	blueprint := fs.String("blueprint", "", "blueprint name (required)")
	fs.Parse(args)

	if *blueprint == "" {
		fs.Usage()
		os.Exit(1)
	}

	engine := cf.open(ctx)
	defer engine.Close()

	b := mustBlueprint(ctx, engine, *blueprint)
	if err := engine.ReindexBlueprint(ctx, b.ID); err != nil {
		fmt.Printf("Error reindexing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Reindexed blueprint %s\n", *blueprint)
}

func handleCompact(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	engine := cf.open(ctx)
	defer engine.Close()

	n, err := engine.Compact(ctx)
	if err != nil {
		fmt.Printf("Error compacting: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d tombstoned path(s)\n", n)
}

func handleOptimize(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	engine := cf.open(ctx)
	defer engine.Close()

	if err := engine.Optimize(ctx); err != nil {
		fmt.Printf("Error optimizing: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Store optimized")
}
