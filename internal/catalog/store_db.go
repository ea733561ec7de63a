package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUndefinedTable = "42P01"

var ErrSchemaMissing = errors.New("catalog tables missing, run catalogctl import")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	sku               TEXT NOT NULL,
	titulo            TEXT NOT NULL DEFAULT '',
	descripcion_corta TEXT NOT NULL DEFAULT '',
	descripcion_larga TEXT NOT NULL DEFAULT '',
	costo_envio       TEXT NOT NULL DEFAULT '',
	descartador       TEXT NOT NULL DEFAULT '',
	imagen_url        TEXT NOT NULL DEFAULT '',
	categorias        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS materials (
	id         BIGSERIAL PRIMARY KEY,
	material   TEXT NOT NULL,
	categorias TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore is the database-backed alternative to CSVStore. Row order is
// insertion order, matching the CSV file.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// Pool exposes the connection pool to stores that share the database.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, schemaSQL)
		return err
	})
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]Product, error) {
	out := make([]Product, 0, 32)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT sku, titulo, descripcion_corta, descripcion_larga,
			       costo_envio, descartador, imagen_url, categorias
			FROM products
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p    Product
				cats string
			)
			if err := rows.Scan(&p.SKU, &p.Title, &p.ShortDescription, &p.LongDescription,
				&p.ShippingCost, &p.Receiver, &p.ImageRef, &cats); err != nil {
				return err
			}
			p.Categories = ParseCategories(cats)
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *PostgresStore) ListMaterials(ctx context.Context) ([]Material, error) {
	out := make([]Material, 0, 16)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT material, categorias
			FROM materials
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name, cats string
			if err := rows.Scan(&name, &cats); err != nil {
				return err
			}
			out = append(out, Material{Name: name, Categories: ParseCategories(cats)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *PostgresStore) AppendProduct(ctx context.Context, p Product) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO products (sku, titulo, descripcion_corta, descripcion_larga,
			                      costo_envio, descartador, imagen_url, categorias)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, productArgs(p)...)
		return err
	})
	return mapPgError(err)
}

// RewriteProducts replaces every product row inside one transaction.
func (s *PostgresStore) RewriteProducts(ctx context.Context, fn func([]Product) ([]Product, error)) error {
	current, err := s.ListProducts(ctx)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.ReplaceProducts(ctx, next)
}

func (s *PostgresStore) ReplaceProducts(ctx context.Context, products []Product) error {
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, productArgs(p))
	}
	return s.replace(ctx, "products", []string{
		colSKU, colTitle, colShort, colLong, colShipping, colReceiver, colImage, colCategory,
	}, rows)
}

func (s *PostgresStore) ReplaceMaterials(ctx context.Context, materials []Material) error {
	rows := make([][]any, 0, len(materials))
	for _, m := range materials {
		rows = append(rows, []any{m.Name, JoinCategories(m.Categories)})
	}
	return s.replace(ctx, "materials", []string{colMaterial, colCategory}, rows)
}

func (s *PostgresStore) replace(ctx context.Context, table string, cols []string, rows [][]any) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
		return mapPgError(err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows)); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}

func productArgs(p Product) []any {
	return []any{
		p.SKU, p.Title, p.ShortDescription, p.LongDescription,
		p.ShippingCost, p.Receiver, p.ImageRef, JoinCategories(p.Categories),
	}
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	}
	return err
}
