package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EcoMarket/internal/catalog"
)

func TestNormalizeImageRef(t *testing.T) {
	cases := map[string]string{
		"foto.png":                   "foto.png",
		"/static/fotos/foto.png":     "foto.png",
		"static/fotos/foto.png":      "foto.png",
		"/static/foto.png":           "foto.png",
		"static/foto.png":            "foto.png",
		"  foto.png ":                "foto.png",
		"":                           "",
		"https://cdn.example/a.jpg":  "https://cdn.example/a.jpg",
		"http://cdn.example/s/a.jpg": "http://cdn.example/s/a.jpg",
	}
	for in, want := range cases {
		assert.Equal(t, want, catalog.NormalizeImageRef(in), in)
	}
}

func TestFixImagePaths_MemStore(t *testing.T) {
	s := catalog.NewMemStore([]catalog.Product{
		{SKU: "001", ImageRef: "/static/fotos/a.png"},
		{SKU: "002", ImageRef: "b.png"},
		{SKU: "003", ImageRef: "static/c.png"},
	}, nil)

	res, err := catalog.FixImagePaths(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, catalog.FixResult{Total: 3, Changed: 2}, res)

	again, err := catalog.FixImagePaths(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Changed)

	ps, _ := s.ListProducts(context.Background())
	assert.Equal(t, "a.png", ps[0].ImageRef)
	assert.Equal(t, "c.png", ps[2].ImageRef)
}

func TestVerifyImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fotos")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"a.png", "orphan.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	rep, err := catalog.VerifyImages([]catalog.Product{
		{SKU: "001", ImageRef: "static/fotos/a.png"},
		{SKU: "002", ImageRef: "missing.png"},
		{SKU: "003", ImageRef: "https://cdn.example/r.jpg"},
		{SKU: "004"},
	}, dir)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Files)
	assert.Len(t, rep.Referenced, 3)
	assert.Equal(t, []string{"orphan.jpg"}, rep.Unused)

	missing := rep.Missing()
	require.Len(t, missing, 1)
	assert.Equal(t, "002", missing[0].SKU)
}

func TestVerifyImages_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nueva")

	rep, err := catalog.VerifyImages(nil, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Files)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
