package catalog_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EcoMarket/internal/catalog"
)

func newCSVStore(t *testing.T, products, materials string) *catalog.CSVStore {
	t.Helper()
	dir := t.TempDir()
	pp := filepath.Join(dir, "products.csv")
	mp := filepath.Join(dir, "materiales.csv")
	if products != "" {
		require.NoError(t, os.WriteFile(pp, []byte(products), 0o644))
	}
	if materials != "" {
		require.NoError(t, os.WriteFile(mp, []byte(materials), 0o644))
	}
	return catalog.NewCSVStore(pp, mp)
}

func TestCSVStore_MissingFilesAreEmpty(t *testing.T) {
	s := newCSVStore(t, "", "")
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	mats, err := s.ListMaterials(ctx)
	require.NoError(t, err)
	assert.Empty(t, mats)

	assert.NoError(t, s.Ping(ctx))
}

func TestCSVStore_AppendCreatesHeader(t *testing.T) {
	s := newCSVStore(t, "", "")
	ctx := context.Background()

	p := catalog.Product{SKU: "001", Title: "Fardo", Receiver: "Ana", Categories: []string{"Cartón", "Papel"}}
	require.NoError(t, s.AppendProduct(ctx, p))

	raw, err := os.ReadFile(s.ProductsPath())
	require.NoError(t, err)
	assert.Equal(t,
		"sku,titulo,descripcion_corta,descripcion_larga,costo_envio,descartador,imagen_url,categorias\n"+
			"001,Fardo,,,,Ana,,Cartón|Papel\n",
		string(raw))
}

func TestCSVStore_AppendFollowsExistingHeaderAndFixesNewline(t *testing.T) {
	s := newCSVStore(t, "titulo,sku,categorias\nSilla,008,Muebles", "")
	ctx := context.Background()

	require.NoError(t, s.AppendProduct(ctx, catalog.Product{SKU: "009", Title: "Lavadora", Categories: []string{"Electrónicos"}}))

	raw, err := os.ReadFile(s.ProductsPath())
	require.NoError(t, err)
	assert.Equal(t, "titulo,sku,categorias\nSilla,008,Muebles\nLavadora,009,Electrónicos\n", string(raw))

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "009", products[1].SKU)
}

func TestCSVStore_ConcurrentAppends(t *testing.T) {
	s := newCSVStore(t, "", "")
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendProduct(ctx, catalog.Product{SKU: fmt.Sprintf("%03d", i), Title: "x"}))
		}(i)
	}
	wg.Wait()

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, n)
}

func TestCSVStore_RewriteProducts(t *testing.T) {
	s := newCSVStore(t, productsCSV, "")
	ctx := context.Background()

	res, err := catalog.FixImagePaths(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, catalog.FixResult{Total: 3, Changed: 1}, res)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bici.png", products[1].ImageRef)
	assert.Equal(t, "frágil", products[0].Extra["notas"])

	entries, err := os.ReadDir(filepath.Dir(s.ProductsPath()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestCSVStore_ReplaceMaterials(t *testing.T) {
	s := newCSVStore(t, "", "")
	ctx := context.Background()

	in := []catalog.Material{{Name: "Papel", Categories: []string{"Cartón", "Papel"}}}
	require.NoError(t, s.ReplaceMaterials(ctx, in))

	got, err := s.ListMaterials(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestCSVStore_CancelledContext(t *testing.T) {
	s := newCSVStore(t, productsCSV, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListProducts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVStore_BareQuotesInFields(t *testing.T) {
	s := newCSVStore(t,
		"sku,titulo,descartador,categorias\n"+
			"001,Tubo 3\" PVC,Ana,Plástico\n"+
			"002,Bicicleta,Pedro,Metales\n",
		"material,categorias\nPVC 1/2\",Plástico\n",
	)

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, `Tubo 3" PVC`, products[0].Title)
	assert.Equal(t, "Bicicleta", products[1].Title)

	materials, err := s.ListMaterials(context.Background())
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, `PVC 1/2"`, materials[0].Name)

	require.NoError(t, s.AppendProduct(context.Background(), catalog.Product{SKU: "003", Title: "Caño 1\"", Receiver: "Eva"}))
	products, err = s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, `Caño 1"`, products[2].Title)
}
