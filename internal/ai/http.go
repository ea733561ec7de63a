package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"EcoMarket/pkg/kit"
)

const defaultMaxImageBytes = 10 << 20

var ErrImageTooLarge = errors.New("image too large")

// Server exposes the generators as JSON endpoints fed by a multipart form:
// descripcion plus an optional imagen file or imagen_camara data URL.
type Server struct {
	AI       *Service
	Log      *zap.Logger
	MaxBytes int64
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/suggest", s.suggest)
	r.Post("/title", s.title)
	r.Post("/description", s.description)
	r.Post("/categories", s.categories)
	return r
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, func(ctx context.Context, in Input) (any, error) {
		return s.AI.Suggest(ctx, in)
	})
}

func (s *Server) title(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, func(ctx context.Context, in Input) (any, error) {
		return s.AI.GenerateTitle(ctx, in)
	})
}

func (s *Server) description(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, func(ctx context.Context, in Input) (any, error) {
		return s.AI.GenerateLongDescription(ctx, in)
	})
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, func(ctx context.Context, in Input) (any, error) {
		return s.AI.GenerateCategories(ctx, in)
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request, fn func(context.Context, Input) (any, error)) {
	if !s.AI.Enabled() {
		kit.WriteError(w, r, http.StatusServiceUnavailable, ErrDisabled.Error(), nil)
		return
	}

	in, err := s.readInput(r)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.Is(err, ErrImageTooLarge) || errors.As(err, &mbe) {
			kit.WriteError(w, r, http.StatusRequestEntityTooLarge, ErrImageTooLarge.Error(), nil)
			return
		}
		kit.WriteError(w, r, http.StatusBadRequest, "invalid form", map[string]any{"reason": err.Error()})
		return
	}

	out, err := fn(r.Context(), in)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError && s.Log != nil {
			s.Log.Warn("ai request failed", zap.Error(err), zap.Int("status", status))
		}
		kit.WriteError(w, r, status, publicMessage(err), nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) readInput(r *http.Request) (Input, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return Input{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		return Input{}, err
	}

	in := Input{Description: strings.TrimSpace(r.FormValue("descripcion"))}

	if r.MultipartForm != nil {
		if f, _, err := r.FormFile("imagen"); err == nil {
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, limit+1))
			if err != nil {
				return Input{}, err
			}
			if int64(len(data)) > limit {
				return Input{}, ErrImageTooLarge
			}
			in.Image = data
		}
	}
	if len(in.Image) == 0 {
		if du := r.FormValue("imagen_camara"); du != "" {
			_, data, err := kit.DecodeDataURL(du)
			if err != nil {
				return Input{}, err
			}
			if int64(len(data)) > limit {
				return Input{}, ErrImageTooLarge
			}
			in.Image = data
		}
	}
	return in, nil
}

// StatusFor maps service errors to the HTTP status the API answers with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDisabled), errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrNoCategories):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	for _, known := range []error{ErrNoInput, ErrDisabled, ErrCircuitOpen, ErrNoCategories, ErrTimeout, ErrUpstream, ErrEmptyResponse} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "server error"
}
