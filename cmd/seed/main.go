// Command seed loads the development data set into the configured store or
// empties it:
//
//	go run ./cmd/seed -import
//	go run ./cmd/seed -delete
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"natours/internal"
	"natours/internal/config"
	"natours/internal/db"
	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/store"
)

func main() {
	doImport := flag.Bool("import", false, "import dev-data into the store")
	doDelete := flag.Bool("delete", false, "delete every document from the store")
	dir := flag.String("dir", "", "dev-data directory (default <repo>/dev-data)")
	flag.Parse()

	if *doImport == *doDelete {
		fmt.Fprintln(os.Stderr, "usage: seed -import | -delete")
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	if err := logger.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "log init failed: %v\n", err)
		os.Exit(1)
	}
	if err := model.InitRegistry(cfg.SchemasDir); err != nil {
		fail("registry_init_failed", err)
	}
	if *dir == "" {
		root, err := internal.FindRepoRoot()
		if err != nil {
			fail("repo_root_not_found", err)
		}
		*dir = filepath.Join(root, "dev-data")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		fail("store_init_failed", err)
	}

	s := newSeeder(st)
	if *doDelete {
		err = s.deleteAll(ctx)
	} else {
		err = s.importAll(ctx, *dir)
	}
	db.ClosePostgres()
	_ = db.CloseMongo(ctx)
	if err != nil {
		fail("seed_failed", err)
	}
	fmt.Println("done")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		if err := db.InitMongo(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			return nil, err
		}
		st := store.NewMongo(db.Mongo)
		return st, st.EnsureIndexes(ctx, model.Registry)
	case config.StorePostgres:
		if err := db.Migrate(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir); err != nil {
			return nil, err
		}
		if err := db.InitPostgres(ctx, cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		return store.NewPostgres(db.Pool), nil
	}
	return nil, fmt.Errorf("STORE=%q cannot be seeded", cfg.Store)
}

func fail(event string, err error) {
	logger.Error(event, map[string]any{"error": err.Error()})
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
