package listing

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"EcoMarket/pkg/kit"
)

const defaultMaxBytes = 10 << 20

var ErrBadForm = errors.New("invalid upload form")

// ReadForm parses the upload form. The photo comes from the foto file field
// or, failing that, from the foto_camara data URL.
func ReadForm(r *http.Request, maxBytes int64) (Form, []byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return Form{}, nil, fmt.Errorf("%w: %w", ErrBadForm, err)
		}
	} else if err := r.ParseForm(); err != nil {
		return Form{}, nil, fmt.Errorf("%w: %w", ErrBadForm, err)
	}

	f := Form{
		Title:            r.FormValue("titulo"),
		ShortDescription: r.FormValue("descripcion_corta"),
		LongDescription:  r.FormValue("descripcion_larga"),
		ShippingCost:     r.FormValue("costo_envio"),
		Receiver:         r.FormValue("descartador"),
		SKU:              r.FormValue("sku"),
		Categories:       r.Form["categorias"],
	}

	var image []byte
	if r.MultipartForm != nil {
		file, _, err := r.FormFile("foto")
		switch {
		case err == nil:
			defer file.Close()
			image, err = io.ReadAll(io.LimitReader(file, maxBytes+1))
			if err != nil {
				return Form{}, nil, fmt.Errorf("%w: read photo: %v", ErrBadForm, err)
			}
			if int64(len(image)) > maxBytes {
				return Form{}, nil, ErrImageTooLarge
			}
		case !errors.Is(err, http.ErrMissingFile):
			return Form{}, nil, fmt.Errorf("%w: %w", ErrBadForm, err)
		}
	}
	if len(image) == 0 {
		if du := strings.TrimSpace(r.FormValue("foto_camara")); du != "" {
			_, data, err := kit.DecodeDataURL(du)
			if err != nil {
				return Form{}, nil, fmt.Errorf("%w: camera capture: %v", ErrBadForm, err)
			}
			image = data
		}
	}
	return f, image, nil
}

// StatusFor maps a Create or ReadForm error to an HTTP status.
func StatusFor(err error) int {
	var (
		verr    *ValidationError
		tooLong *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLong), errors.Is(err, ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr), errors.Is(err, ErrBadForm):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Server is the JSON variant of the upload form.
type Server struct {
	Service *Service
	Log     *zap.Logger
}

func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	f, image, err := ReadForm(r, s.Service.MaxBytes)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.Service.Create(r.Context(), f, image)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		kit.WriteError(w, r, status, "validation failed", verr.Fields)
	case status == http.StatusInternalServerError:
		if s.Log != nil {
			s.Log.Error("create listing failed", zap.Error(err))
		}
		kit.WriteError(w, r, status, "server error", nil)
	default:
		kit.WriteError(w, r, status, err.Error(), nil)
	}
}
