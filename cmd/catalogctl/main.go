// Command catalogctl runs maintenance jobs against the marketplace catalog.
//
//	catalogctl fix-images     strip legacy static prefixes from imagen_url
//	catalogctl verify-images  report missing and unused photos
//	catalogctl import         copy the CSV catalog into Postgres
//	catalogctl check          report paths, permissions and the configured store
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"EcoMarket/internal/catalog"
	"EcoMarket/internal/config"
	"EcoMarket/pkg/kit"
)

var errUsage = errors.New("usage: catalogctl [-products path] [-materials path] [-photos dir] fix-images|verify-images|import|check")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := kit.NewLogger("catalogctl", cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatal("catalogctl failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer, log *zap.Logger) error {
	fs := flag.NewFlagSet("catalogctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Store.ProductsPath, "products", cfg.Store.ProductsPath, "products CSV")
	fs.StringVar(&cfg.Store.MaterialsPath, "materials", cfg.Store.MaterialsPath, "materials CSV")
	fs.StringVar(&cfg.Upload.PhotoDir, "photos", cfg.Upload.PhotoDir, "photo directory")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	csv := catalog.NewCSVStore(cfg.Store.ProductsPath, cfg.Store.MaterialsPath)

	switch fs.Arg(0) {
	case "fix-images":
		res, err := catalog.FixImagePaths(ctx, csv)
		if err != nil {
			return err
		}
		log.Info("image paths fixed", zap.Int("total", res.Total), zap.Int("changed", res.Changed))
		return writeJSON(out, res)

	case "verify-images":
		products, err := csv.ListProducts(ctx)
		if err != nil {
			return err
		}
		rep, err := catalog.VerifyImages(products, cfg.Upload.PhotoDir)
		if err != nil {
			return err
		}
		if missing := rep.Missing(); len(missing) > 0 {
			log.Warn("products reference missing images", zap.Int("missing", len(missing)))
		}
		return writeJSON(out, rep)

	case "import":
		return importCSV(ctx, cfg, csv, out, log)

	case "check":
		return writeJSON(out, checkEnv(cfg))

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, fs.Arg(0))
	}
}

type importResult struct {
	Products  int `json:"products"`
	Materials int `json:"materials"`
}

func importCSV(ctx context.Context, cfg *config.Config, csv *catalog.CSVStore, out io.Writer, log *zap.Logger) error {
	if cfg.Store.DatabaseURL == "" {
		return errors.New("import: store.database_url is not set")
	}

	products, err := csv.ListProducts(ctx)
	if err != nil {
		return err
	}
	materials, err := csv.ListMaterials(ctx)
	if err != nil {
		return err
	}

	pg, err := catalog.NewPostgresStore(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := pg.ReplaceProducts(ctx, products); err != nil {
		return fmt.Errorf("import products: %w", err)
	}
	if err := pg.ReplaceMaterials(ctx, materials); err != nil {
		return fmt.Errorf("import materials: %w", err)
	}

	log.Info("catalog imported", zap.Int("products", len(products)), zap.Int("materials", len(materials)))
	return writeJSON(out, importResult{Products: len(products), Materials: len(materials)})
}

type pathCheck struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Writable bool   `json:"writable,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type envReport struct {
	Store       string               `json:"store"`
	Environment string               `json:"environment"`
	AI          bool                 `json:"ai_enabled"`
	Auth        bool                 `json:"auth_enabled"`
	Files       map[string]pathCheck `json:"files"`
	Dirs        map[string]pathCheck `json:"dirs"`
}

func checkEnv(cfg *config.Config) envReport {
	rep := envReport{
		Store:       cfg.Store.Driver,
		Environment: cfg.Server.Environment,
		AI:          cfg.AIEnabled(),
		Auth:        cfg.Auth.Enabled,
		Files: map[string]pathCheck{
			"products":  checkFile(cfg.Store.ProductsPath),
			"materials": checkFile(cfg.Store.MaterialsPath),
		},
		Dirs: map[string]pathCheck{
			"photos": checkDir(cfg.Upload.PhotoDir),
			"static": checkDir(cfg.Server.StaticDir),
		},
	}
	if cfg.Server.WellKnownDir != "" {
		rep.Dirs["well_known"] = checkDir(cfg.Server.WellKnownDir)
	}
	return rep
}

func checkFile(path string) pathCheck {
	c := pathCheck{Path: path}
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		c.Exists = true
		c.Size = fi.Size()
	}
	return c
}

func checkDir(dir string) pathCheck {
	c := pathCheck{Path: dir}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return c
	}
	c.Exists = true

	f, err := os.CreateTemp(dir, ".catalogctl-*")
	if err == nil {
		c.Writable = true
		_ = f.Close()
		_ = os.Remove(filepath.Clean(f.Name()))
	}
	return c
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
