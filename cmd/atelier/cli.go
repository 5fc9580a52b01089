package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/atelier/internal/api/mcp"
	"github.com/scrypster/atelier/internal/backup"
	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/internal/engine"
	"github.com/scrypster/atelier/internal/imagegen"
	"github.com/scrypster/atelier/internal/llm"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/internal/notify"
	"github.com/scrypster/atelier/internal/server"
	"github.com/scrypster/atelier/internal/storage"
	"github.com/scrypster/atelier/internal/storage/postgres"
	"github.com/scrypster/atelier/internal/storage/sqlite"
	"github.com/scrypster/atelier/pkg/types"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, log *logger.Logger, out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "atelier",
		Usage:   "Resolve style references against the materials and textures catalogue",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(cfg, log),
			resolveCmd(cfg, log, out),
			seedCategoriesCmd(cfg, log, out),
			backupCmd(cfg, log, out),
			mcpCmd(cfg, log, os.Stdin, out),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(cfg, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer store.Close()

			orch, err := buildOrchestrator(cfg, store, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			addr, _, err := server.Start(ctx, cfg, orch, orch.Cache(), log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("atelier api running", "url", "http://"+addr, "version", Version)

			watcher := notify.NewEventWatcher(cfg.Storage.DataPath, invalidateOnChange(orch.Cache(), log), log)
			if err := watcher.Start(); err != nil {
				log.Warn("catalogue change watcher disabled", "error", err)
			} else {
				defer watcher.Stop()
			}

			if cfg.Storage.StorageEngine != "postgres" && cfg.Backup.Interval > 0 {
				snapshots, err := newBackupService(cfg, log)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				go func() { _ = snapshots.Run(ctx) }()
			}

			<-ctx.Done()
			log.Info("shutting down gracefully")
			return nil
		},
	}
}

// resolveCmd creates the resolve command.
func resolveCmd(cfg *config.Config, log *logger.Logger, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve references for a style and print the batch result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "style", Aliases: []string{"s"}, Required: true, Usage: "Style id to link results to"},
			&cli.StringFlag{Name: "style-name", Usage: "Style display name passed to the model"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: "material", Usage: "Entity kind: material|texture"},
			&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Value: "REGULAR", Usage: "Quality tier: REGULAR|LUXURY"},
			&cli.BoolFlag{Name: "images", Usage: "Generate images for created entities"},
			&cli.StringSliceFlag{Name: "ref", Aliases: []string{"r"}, Required: true, Usage: "Reference text (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			kind, err := types.ParseEntityKind(c.String("kind"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			tier, err := types.ParseQualityTier(c.String("tier"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			store, err := openStore(cfg, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer store.Close()

			orch, err := buildOrchestrator(cfg, store, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			result, err := orch.Resolve(c.Context, engine.BatchRequest{
				StyleID:        c.String("style"),
				StyleName:      c.String("style-name"),
				Kind:           kind,
				References:     c.StringSlice("ref"),
				QualityTier:    tier,
				GenerateImages: c.Bool("images"),
				OnProgress: func(ev engine.ProgressEvent) {
					log.Info(ev.Message, "current", ev.Current, "total", ev.Total)
				},
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if result.Stats.Created > 0 {
				announceChange(cfg, kind, log)
			}
			return outputJSON(out, result)
		},
	}
}

// seedCategoriesCmd creates the seed-categories command.
func seedCategoriesCmd(cfg *config.Config, log *logger.Logger, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "seed-categories",
		Usage: "Create or rename categories from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "YAML file with a top-level categories list"},
		},
		Action: func(c *cli.Context) error {
			categories, err := readCategories(c.String("file"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			store, err := openStore(cfg, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer store.Close()

			for _, category := range categories {
				if err := store.UpsertCategory(c.Context, category); err != nil {
					return cli.Exit(fmt.Sprintf("category %q: %v", category.ID, err), 1)
				}
			}
			announceChange(cfg, "", log)
			return outputJSON(out, map[string]int{"seeded": len(categories)})
		},
	}
}

// mcpCmd creates the mcp command, which serves MCP tools over stdio.
func mcpCmd(cfg *config.Config, log *logger.Logger, in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve resolution tools over MCP (JSON-RPC on stdin/stdout)",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(cfg, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer store.Close()

			orch, err := buildOrchestrator(cfg, store, log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			srv := mcp.NewServer(orch, orch.Cache(),
				mcp.WithVersion(Version),
				mcp.WithLogger(log),
				mcp.WithChangeHook(func(kind types.EntityKind) { announceChange(cfg, kind, log) }),
			)
			if err := mcp.NewStdioTransport(srv, in, out, log).Serve(ctx); err != nil && ctx.Err() == nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// backupCmd creates the backup command and its subcommands.
func backupCmd(cfg *config.Config, log *logger.Logger, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Snapshot, list and restore the SQLite catalogue",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Write a snapshot now",
				Action: func(c *cli.Context) error {
					svc, err := newBackupService(cfg, log)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					snap, err := svc.Snapshot(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return outputJSON(out, snap)
				},
			},
			{
				Name:  "list",
				Usage: "List snapshots, newest first",
				Action: func(c *cli.Context) error {
					svc, err := newBackupService(cfg, log)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					snaps, err := svc.List()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if snaps == nil {
						snaps = []backup.Snapshot{}
					}
					return outputJSON(out, snaps)
				},
			},
			{
				Name:  "restore",
				Usage: "Replace the catalogue with a snapshot (stop the server first)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "Snapshot file"},
				},
				Action: func(c *cli.Context) error {
					svc, err := newBackupService(cfg, log)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if err := svc.Restore(c.Context, c.String("file")); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					announceChange(cfg, "", log)
					return outputJSON(out, map[string]string{"restored": c.String("file")})
				},
			},
		},
	}
}

// newBackupService builds the snapshot service for the SQLite catalogue.
func newBackupService(cfg *config.Config, log *logger.Logger) (*backup.Service, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return nil, fmt.Errorf("snapshots are only supported for the sqlite storage engine")
	}
	return backup.New(backup.Config{
		DBPath:   cfg.Storage.SQLitePath(),
		Dir:      cfg.Backup.Dir,
		Keep:     cfg.Backup.Keep,
		Verify:   cfg.Backup.Verify,
		Interval: cfg.Backup.Interval,
	}, log)
}

// announceChange tells other processes sharing the data directory that the
// catalogue changed. An empty kind covers every kind.
func announceChange(cfg *config.Config, kind types.EntityKind, log *logger.Logger) {
	if err := notify.NewEventWriter(cfg.Storage.DataPath).CatalogueChanged(kind); err != nil {
		log.Warn("failed to announce catalogue change", "error", err)
	}
}

// invalidateOnChange maps change events onto context cache invalidation.
func invalidateOnChange(cache *engine.ContextCache, log *logger.Logger) func(notify.Event) {
	return func(e notify.Event) {
		if e.Type != notify.EventCatalogueChanged {
			return
		}
		log.Debug("catalogue change event received", "kind", e.Kind)
		if types.IsValidEntityKind(e.Kind) {
			cache.Invalidate(e.Kind)
			return
		}
		cache.InvalidateAll()
	}
}

type categoriesFile struct {
	Categories []*types.Category `yaml:"categories"`
}

// readCategories parses and validates a categories seed file.
func readCategories(path string) ([]*types.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}
	for i, category := range f.Categories {
		if category == nil || category.ID == "" || category.Name.En == "" {
			return nil, fmt.Errorf("category %d: id and name.en are required", i)
		}
		if !types.IsValidEntityKind(category.Kind) {
			return nil, fmt.Errorf("category %q: invalid kind %q", category.ID, category.Kind)
		}
		if category.Name.He == "" {
			category.Name.He = category.Name.En
		}
	}
	return f.Categories, nil
}

// openStore opens the configured catalogue backend.
func openStore(cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewCatalogueStore(cfg.Storage.PostgresDSN, log)
	case "", "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewCatalogueStore(cfg.Storage.SQLitePath(), log)
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", cfg.Storage.StorageEngine)
	}
}

// buildOrchestrator wires the resolution pipeline from configuration.
func buildOrchestrator(cfg *config.Config, store storage.CatalogueStore, log *logger.Logger) (*engine.BatchOrchestrator, error) {
	gen, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	rules := engine.DefaultCategoryRules()
	if path := cfg.Resolution.CategoryRulesFile; path != "" {
		if rules, err = engine.LoadCategoryRules(path); err != nil {
			return nil, err
		}
		log.Info("loaded category rules", "path", path, "rules", len(rules))
	}

	return engine.New(store, gen, imagegen.NewGenerator(cfg.ImageGen), rules, engine.ConfigFromResolution(cfg.Resolution), log)
}

// outputJSON writes v as indented JSON.
func outputJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
