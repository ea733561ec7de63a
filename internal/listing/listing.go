// Package listing creates marketplace listings from the upload form: it
// validates the fields, stores the photo and appends the product row.
package listing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"EcoMarket/internal/catalog"
	"EcoMarket/pkg/kit"
)

const skuWidth = 3

var (
	ErrImageTooLarge    = errors.New("image too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// Accepted photo types and the extension they are stored under.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Form struct {
	Title            string   `form:"titulo" validate:"required,max=200"`
	ShortDescription string   `form:"descripcion_corta" validate:"max=500"`
	LongDescription  string   `form:"descripcion_larga" validate:"max=5000"`
	ShippingCost     string   `form:"costo_envio" validate:"money,max=32"`
	Receiver         string   `form:"descartador" validate:"required,max=120"`
	SKU              string   `form:"sku" validate:"max=32"`
	Categories       []string `form:"categorias" validate:"max=20,dive,max=60"`
}

type ValidationError struct {
	Fields []kit.FieldError
}

func (e *ValidationError) Error() string {
	return "invalid listing: " + kit.FieldErrorsString(e.Fields)
}

type Service struct {
	Store    catalog.Store
	PhotoDir string
	MaxBytes int64
	Log      *zap.Logger

	// Serialises SKU selection with the append that claims it.
	mu sync.Mutex
}

// Create validates f, writes image (if any) to the photo directory and
// appends the product. When the append fails the written image is removed.
func (s *Service) Create(ctx context.Context, f Form, image []byte) (catalog.Product, error) {
	f = f.normalized()
	if errs := kit.ValidateStruct(f); errs != nil {
		return catalog.Product{}, &ValidationError{Fields: errs}
	}

	ext := ""
	if len(image) > 0 {
		if s.MaxBytes > 0 && int64(len(image)) > s.MaxBytes {
			return catalog.Product{}, ErrImageTooLarge
		}
		var ok bool
		mt := mimetype.Detect(image)
		if ext, ok = imageExt[mt.String()]; !ok {
			return catalog.Product{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sku := f.SKU
	if sku == "" {
		products, err := s.Store.ListProducts(ctx)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("list products: %w", err)
		}
		sku = NextSKU(products)
	}

	p := catalog.Product{
		SKU:              sku,
		Title:            f.Title,
		ShortDescription: f.ShortDescription,
		LongDescription:  f.LongDescription,
		ShippingCost:     f.ShippingCost,
		Receiver:         f.Receiver,
		Categories:       f.Categories,
	}

	var written string
	if len(image) > 0 {
		name, err := s.writeImage(sku, ext, image)
		if err != nil {
			return catalog.Product{}, err
		}
		written = filepath.Join(s.PhotoDir, name)
		p.ImageRef = name
	}

	if err := s.Store.AppendProduct(ctx, p); err != nil {
		if written != "" {
			if rmErr := os.Remove(written); rmErr != nil && s.Log != nil {
				s.Log.Warn("remove orphan image failed", zap.String("path", written), zap.Error(rmErr))
			}
		}
		return catalog.Product{}, fmt.Errorf("append product: %w", err)
	}

	if s.Log != nil {
		s.Log.Info("listing created",
			zap.String("sku", p.SKU),
			zap.String("receiver", p.Receiver),
			zap.String("image", p.ImageRef),
		)
	}
	return p, nil
}

func (s *Service) writeImage(sku, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.PhotoDir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	base := unsafeFileChars.ReplaceAllString(sku, "_")
	name := fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext)
	path := filepath.Join(s.PhotoDir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close image: %w", err)
	}
	return name, nil
}

// NextSKU returns one more than the largest numeric SKU, zero-padded to
// three digits. Non-numeric SKUs are ignored.
func NextSKU(products []catalog.Product) string {
	top := 0
	for _, p := range products {
		n, err := strconv.Atoi(strings.TrimSpace(p.SKU))
		if err == nil && n > top && n < math.MaxInt {
			top = n
		}
	}
	return fmt.Sprintf("%0*d", skuWidth, top+1)
}

// SplitCategories flattens repeated form values, each of which may itself
// hold several names separated by "|" or ",". Order is kept, duplicates and
// blanks are dropped.
func SplitCategories(values []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		for _, c := range strings.FieldsFunc(v, func(r rune) bool { return r == '|' || r == ',' }) {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (f Form) normalized() Form {
	f.Title = strings.TrimSpace(f.Title)
	f.ShortDescription = strings.TrimSpace(f.ShortDescription)
	f.LongDescription = strings.TrimSpace(f.LongDescription)
	f.ShippingCost = strings.TrimSpace(f.ShippingCost)
	f.Receiver = strings.TrimSpace(f.Receiver)
	f.SKU = strings.TrimSpace(f.SKU)
	f.Categories = SplitCategories(f.Categories)
	return f
}
