// Command migrate manages the schema: goose up/down/status/version against
// the configured database, seeding the default membership ladder, and
// scaffolding or validating migration files in the source tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// schemaCommands need a live database; the rest only touch files.
var schemaCommands = map[string]func(context.Context, *schema, options) error{
	"up":   func(ctx context.Context, s *schema, _ options) error { return s.migrator.Up(ctx) },
	"down": func(ctx context.Context, s *schema, _ options) error { return s.migrator.Down(ctx) },
	"status": func(ctx context.Context, s *schema, _ options) error {
		states, err := s.migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
		for _, st := range states {
			fmt.Fprintf(w, "%d\t%t\t%s\n", st.Version, st.Applied, st.File)
		}
		return w.Flush()
	},
	"version": func(ctx context.Context, s *schema, o options) error {
		if o.version == "" {
			return errors.New("-version is required")
		}
		return s.migrator.To(ctx, o.version)
	},
	"seed": func(ctx context.Context, s *schema, _ options) error {
		levels, err := memberships.NewService(memberships.NewRepository(s.client.DB()), s.client, s.logg)
		if err != nil {
			return err
		}
		return levels.EnsureDefaults(ctx)
	},
}

type schema struct {
	client   *db.Client
	migrator *migrate.Migrator
	logg     *logger.Logger
}

func main() {
	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "up|down|status|version|seed|create|validate")
	flag.StringVar(&o.dir, "dir", migrate.DefaultDir, "migrations directory for create and validate")
	flag.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&o.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", o.cmd, err)
		os.Exit(1)
	}
}

func run(o options) error {
	switch o.cmd {
	case "create":
		if o.name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateFS(os.DirFS(o.dir)); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}

	command, ok := schemaCommands[o.cmd]
	if !ok {
		return fmt.Errorf("unknown command")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": o.cmd})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, logg)
	if err != nil {
		return err
	}

	if err := command(ctx, &schema{client: client, migrator: migrator, logg: logg}, o); err != nil {
		return err
	}
	logg.Info(ctx, "migrate command finished")
	return nil
}
