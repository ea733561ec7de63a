package catalog

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// Prefixes that older uploads stored in imagen_url. Longest first.
var staticPrefixes = []string{"/static/fotos/", "static/fotos/", "/static/", "static/"}

// NormalizeImageRef reduces a stored image reference to the bare filename
// served from the photo directory. Remote URLs are returned unchanged.
func NormalizeImageRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || IsRemoteRef(ref) {
		return ref
	}
	for _, p := range staticPrefixes {
		if strings.HasPrefix(ref, p) {
			return ref[len(p):]
		}
	}
	return ref
}

type FixResult struct {
	Total   int `json:"total"`
	Changed int `json:"changed"`
}

// FixImagePaths rewrites every product whose image reference is not already
// normalised.
func FixImagePaths(ctx context.Context, rw Rewriter) (FixResult, error) {
	var res FixResult
	err := rw.RewriteProducts(ctx, func(products []Product) ([]Product, error) {
		res.Total = len(products)
		for i := range products {
			fixed := NormalizeImageRef(products[i].ImageRef)
			if fixed != products[i].ImageRef {
				products[i].ImageRef = fixed
				res.Changed++
			}
		}
		return products, nil
	})
	return res, err
}

type ImageCheck struct {
	SKU    string `json:"sku"`
	Ref    string `json:"ref"`
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Remote bool   `json:"remote"`
}

type ImageReport struct {
	Dir        string       `json:"dir"`
	Referenced []ImageCheck `json:"referenced"`
	Unused     []string     `json:"unused"`
	Files      int          `json:"files"`
}

func (r ImageReport) Missing() []ImageCheck {
	var out []ImageCheck
	for _, c := range r.Referenced {
		if !c.Exists && !c.Remote {
			out = append(out, c)
		}
	}
	return out
}

// VerifyImages compares the image references in products with the files in
// dir. The directory is created when it does not exist.
func VerifyImages(products []Product, dir string) (ImageReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ImageReport{}, fmt.Errorf("create photo dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImageReport{}, fmt.Errorf("read photo dir: %w", err)
	}

	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = false
		}
	}

	rep := ImageReport{Dir: dir, Files: len(files)}
	for _, p := range products {
		ref := strings.TrimSpace(p.ImageRef)
		if ref == "" {
			continue
		}
		c := ImageCheck{SKU: p.SKU, Ref: ref, Remote: IsRemoteRef(ref)}
		if c.Remote {
			c.Name = path.Base(ref)
		} else {
			c.Name = path.Base(NormalizeImageRef(ref))
			if _, ok := files[c.Name]; ok {
				c.Exists = true
				files[c.Name] = true
			}
		}
		rep.Referenced = append(rep.Referenced, c)
	}

	for _, e := range entries {
		if used, ok := files[e.Name()]; ok && !used {
			rep.Unused = append(rep.Unused, e.Name())
		}
	}
	return rep, nil
}
