package catalog

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// CSVStore keeps products and materials in two flat CSV files that are
// re-read on every call. Writers in this process are serialised; nothing
// guards against a second process touching the same files.
type CSVStore struct {
	mu            sync.RWMutex
	productsPath  string
	materialsPath string
}

func NewCSVStore(productsPath, materialsPath string) *CSVStore {
	return &CSVStore{productsPath: productsPath, materialsPath: materialsPath}
}

func (s *CSVStore) ProductsPath() string  { return s.productsPath }
func (s *CSVStore) MaterialsPath() string { return s.materialsPath }

func (s *CSVStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.productsPath)
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("products dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("products dir %s is not a directory", dir)
	}
	return nil
}

// ListProducts returns every row in file order. A products file that does
// not exist yet is an empty catalog.
func (s *CSVStore) ListProducts(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, products, err := s.readProducts()
	return products, err
}

func (s *CSVStore) ListMaterials(ctx context.Context) ([]Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.materialsPath)
	if errors.Is(err, os.ErrNotExist) {
		return []Material{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open materials: %w", err)
	}
	defer f.Close()

	return DecodeMaterials(bufio.NewReader(f))
}

// AppendProduct adds one row at the end of the file, writing the header
// first when the file is new or empty. Columns follow the existing header.
func (s *CSVStore) AppendProduct(ctx context.Context, p Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.productsPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open products: %w", err)
	}
	defer f.Close()

	header, size, err := headerAndSize(f)
	if err != nil {
		return err
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek products: %w", err)
	}

	w := bufio.NewWriter(f)
	if size == 0 {
		header = ProductColumns
	} else {
		nl, err := missingTrailingNewline(f, size)
		if err != nil {
			return err
		}
		if nl {
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
	}

	cw := csv.NewWriter(w)
	if size == 0 {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.Write(ProductRecord(header, p)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush products: %w", err)
	}
	return f.Sync()
}

// RewriteProducts replaces the file with fn's result through a temp file and
// a rename, so readers never observe a half-written catalog.
func (s *CSVStore) RewriteProducts(ctx context.Context, fn func([]Product) ([]Product, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	header, products, err := s.readProducts()
	if err != nil {
		return err
	}

	next, err := fn(products)
	if err != nil {
		return err
	}

	return writeFileAtomic(s.productsPath, func(w io.Writer) error {
		return EncodeProducts(w, header, next)
	})
}

// ReplaceMaterials overwrites the materials file.
func (s *CSVStore) ReplaceMaterials(ctx context.Context, materials []Material) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.materialsPath, func(w io.Writer) error {
		return EncodeMaterials(w, materials)
	})
}

func (s *CSVStore) readProducts() ([]string, []Product, error) {
	f, err := os.Open(s.productsPath)
	if errors.Is(err, os.ErrNotExist) {
		return ProductColumns, []Product{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open products: %w", err)
	}
	defer f.Close()

	header, products, err := DecodeProducts(bufio.NewReader(f))
	if errors.Is(err, ErrNoHeader) {
		return ProductColumns, []Product{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("decode products: %w", err)
	}
	if products == nil {
		products = []Product{}
	}
	return header, products, nil
}

func headerAndSize(f *os.File) ([]string, int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat products: %w", err)
	}
	if fi.Size() == 0 {
		return nil, 0, nil
	}

	cr := csv.NewReader(bufio.NewReader(io.NewSectionReader(f, 0, fi.Size())))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	return cleanHeader(header), fi.Size(), nil
}

func missingTrailingNewline(f *os.File, size int64) (bool, error) {
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, size-1); err != nil {
		return false, fmt.Errorf("read last byte: %w", err)
	}
	return buf[0] != '\n', nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	return os.Rename(tmpName, path)
}
