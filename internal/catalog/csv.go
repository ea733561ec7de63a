package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	colSKU       = "sku"
	colTitle     = "titulo"
	colShort     = "descripcion_corta"
	colLong      = "descripcion_larga"
	colShipping  = "costo_envio"
	colReceiver  = "descartador"
	colImage     = "imagen_url"
	colCategory  = "categorias"
	colMaterial  = "material"
	utf8BOM      = "\ufeff"
	minMatFields = 2
)

// ProductColumns is the header written to a new products file.
var ProductColumns = []string{colSKU, colTitle, colShort, colLong, colShipping, colReceiver, colImage, colCategory}

var MaterialColumns = []string{colMaterial, colCategory}

var ErrNoHeader = errors.New("csv has no header row")

// DecodeProducts reads a products file addressed by header name. A missing
// column leaves the field empty; the header is returned so a rewrite can
// keep the original column order.
func DecodeProducts(r io.Reader) ([]string, []Product, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header = cleanHeader(header)

	var out []Product
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return header, out, fmt.Errorf("read row %d: %w", len(out)+2, err)
		}
		out = append(out, productFromRecord(header, rec))
	}
	return header, out, nil
}

func productFromRecord(header, rec []string) Product {
	var p Product
	for i, col := range header {
		v := ""
		if i < len(rec) {
			v = rec[i]
		}
		switch col {
		case colSKU:
			p.SKU = v
		case colTitle:
			p.Title = v
		case colShort:
			p.ShortDescription = v
		case colLong:
			p.LongDescription = v
		case colShipping:
			p.ShippingCost = v
		case colReceiver:
			p.Receiver = v
		case colImage:
			p.ImageRef = v
		case colCategory:
			p.Categories = ParseCategories(v)
		default:
			if p.Extra == nil {
				p.Extra = map[string]string{}
			}
			p.Extra[col] = v
		}
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	return p
}

func ProductRecord(header []string, p Product) []string {
	rec := make([]string, len(header))
	for i, col := range header {
		switch col {
		case colSKU:
			rec[i] = p.SKU
		case colTitle:
			rec[i] = p.Title
		case colShort:
			rec[i] = p.ShortDescription
		case colLong:
			rec[i] = p.LongDescription
		case colShipping:
			rec[i] = p.ShippingCost
		case colReceiver:
			rec[i] = p.Receiver
		case colImage:
			rec[i] = p.ImageRef
		case colCategory:
			rec[i] = JoinCategories(p.Categories)
		default:
			rec[i] = p.Extra[col]
		}
	}
	return rec
}

func EncodeProducts(w io.Writer, header []string, products []Product) error {
	if len(header) == 0 {
		header = ProductColumns
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write(ProductRecord(header, p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeMaterials reads materiales.csv by position: the first row is a
// header and rows with fewer than two fields are skipped.
func DecodeMaterials(r io.Reader) ([]Material, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []Material{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	out := []Material{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read row %d: %w", len(out)+2, err)
		}
		if len(rec) < minMatFields {
			continue
		}
		out = append(out, Material{
			Name:       strings.TrimSpace(rec[0]),
			Categories: ParseCategories(rec[1]),
		})
	}
}

func EncodeMaterials(w io.Writer, materials []Material) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MaterialColumns); err != nil {
		return err
	}
	for _, m := range materials {
		if err := cw.Write([]string{m.Name, JoinCategories(m.Categories)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		out[i] = strings.TrimSpace(c)
	}
	return out
}
