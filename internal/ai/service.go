package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"EcoMarket/internal/catalog"
)

var (
	ErrDisabled     = errors.New("ai disabled")
	ErrNoCategories = errors.New("no categories available")
	ErrNoInput      = errors.New("description or image required")
)

// Generator is the model backend. GeminiClient is the production one.
type Generator interface {
	Generate(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

// MaterialLister supplies the category vocabulary. catalog.Store satisfies it.
type MaterialLister interface {
	ListMaterials(ctx context.Context) ([]catalog.Material, error)
}

type Options struct {
	Model   string
	Timeout time.Duration
	Breaker BreakerSettings
	Cache   Cache
	Metrics *Metrics
	Log     *zap.Logger
}

type Service struct {
	gen       Generator
	materials MaterialLister
	model     string
	timeout   time.Duration
	breaker   *Breaker
	cache     Cache
	metrics   *Metrics
	log       *zap.Logger
}

func NewService(gen Generator, materials MaterialLister, opt Options) *Service {
	if opt.Log == nil {
		opt.Log = zap.NewNop()
	}
	if opt.Cache == nil {
		opt.Cache = NopCache{}
	}
	return &Service{
		gen:       gen,
		materials: materials,
		model:     opt.Model,
		timeout:   opt.Timeout,
		breaker:   NewBreaker(opt.Breaker, opt.Log, opt.Metrics),
		cache:     opt.Cache,
		metrics:   opt.Metrics,
		log:       opt.Log,
	}
}

// Enabled reports whether a model backend is configured. A nil *Service is
// disabled.
func (s *Service) Enabled() bool { return s != nil && s.gen != nil }

// Input is what the user gave us: a free-text description and an optional
// raw image in any of the accepted formats.
type Input struct {
	Description string
	Image       []byte
}

type CategoriesResult struct {
	Categories []string `json:"categorias"`
	Raw        string   `json:"raw,omitempty"`
}

type TitleResult struct {
	Title    string `json:"titulo"`
	Fallback bool   `json:"fallback"`
}

type DescriptionResult struct {
	Description string `json:"descripcion_larga"`
}

type Suggestion struct {
	Title       string            `json:"titulo"`
	Description string            `json:"descripcion_larga,omitempty"`
	Categories  []string          `json:"categorias"`
	Fallback    bool              `json:"fallback"`
	Errors      map[string]string `json:"errors,omitempty"`
}

func (s *Service) GenerateCategories(ctx context.Context, in Input) (CategoriesResult, error) {
	if !s.Enabled() {
		return CategoriesResult{}, ErrDisabled
	}
	jpeg, err := s.prepare(in)
	if err != nil {
		return CategoriesResult{}, err
	}
	return s.categories(ctx, in.Description, jpeg)
}

func (s *Service) GenerateLongDescription(ctx context.Context, in Input) (DescriptionResult, error) {
	if !s.Enabled() {
		return DescriptionResult{}, ErrDisabled
	}
	jpeg, err := s.prepare(in)
	if err != nil {
		return DescriptionResult{}, err
	}
	return s.description(ctx, in.Description, jpeg)
}

// GenerateTitle never fails on an upstream problem: it answers with
// FallbackTitle instead. Only a disabled service or empty input is an error.
func (s *Service) GenerateTitle(ctx context.Context, in Input) (TitleResult, error) {
	if !s.Enabled() {
		return TitleResult{}, ErrDisabled
	}
	jpeg, err := s.prepare(in)
	if err != nil {
		return TitleResult{}, err
	}
	return s.title(ctx, in.Description, jpeg), nil
}

// Suggest runs the three generators concurrently on the same input. Failed
// parts are reported in Errors; the call itself only fails when nothing
// could be attempted.
func (s *Service) Suggest(ctx context.Context, in Input) (Suggestion, error) {
	if !s.Enabled() {
		return Suggestion{}, ErrDisabled
	}
	jpeg, err := s.prepare(in)
	if err != nil {
		return Suggestion{}, err
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		out   = Suggestion{Categories: []string{}}
		fails = map[string]string{}
	)
	fail := func(field string, err error) {
		mu.Lock()
		fails[field] = err.Error()
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		t := s.title(ctx, in.Description, jpeg)
		mu.Lock()
		out.Title, out.Fallback = t.Title, t.Fallback
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		d, err := s.description(ctx, in.Description, jpeg)
		if err != nil {
			fail("descripcion_larga", err)
			return
		}
		mu.Lock()
		out.Description = d.Description
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		c, err := s.categories(ctx, in.Description, jpeg)
		if err != nil {
			fail("categorias", err)
			return
		}
		mu.Lock()
		out.Categories = c.Categories
		mu.Unlock()
	}()
	wg.Wait()

	if len(fails) > 0 {
		out.Errors = fails
	}
	return out, nil
}

func (s *Service) categories(ctx context.Context, description string, jpeg []byte) (CategoriesResult, error) {
	materials, err := s.materials.ListMaterials(ctx)
	if err != nil {
		return CategoriesResult{}, fmt.Errorf("list materials: %w", err)
	}
	known := catalog.MaterialCategories(materials)
	if len(known) == 0 {
		return CategoriesResult{}, ErrNoCategories
	}

	reply, err := s.complete(ctx, "categories", categoriesPrompt(known, description), jpeg)
	if err != nil {
		return CategoriesResult{}, err
	}
	return CategoriesResult{Categories: MatchCategories(reply, known), Raw: reply}, nil
}

func (s *Service) description(ctx context.Context, short string, jpeg []byte) (DescriptionResult, error) {
	reply, err := s.complete(ctx, "description", descriptionPrompt(short), jpeg)
	if err != nil {
		return DescriptionResult{}, err
	}
	return DescriptionResult{Description: reply}, nil
}

func (s *Service) title(ctx context.Context, description string, jpeg []byte) TitleResult {
	reply, err := s.complete(ctx, "title", titlePrompt(description), jpeg)
	if err != nil {
		s.log.Warn("ai title fallback", zap.Error(err))
		return TitleResult{Title: FallbackTitle, Fallback: true}
	}
	if t := cleanTitle(reply); t != "" {
		return TitleResult{Title: t}
	}
	return TitleResult{Title: FallbackTitle, Fallback: true}
}

// prepare validates the input and converts the image. An image that cannot
// be decoded is dropped so the text prompt still goes out.
func (s *Service) prepare(in Input) ([]byte, error) {
	hasText := strings.TrimSpace(in.Description) != ""
	if !hasText && len(in.Image) == 0 {
		return nil, ErrNoInput
	}
	if len(in.Image) == 0 {
		return nil, nil
	}

	jpeg, err := PrepareImage(in.Image)
	if err != nil {
		s.log.Warn("ai image dropped", zap.Error(err), zap.Int("bytes", len(in.Image)))
		if !hasText {
			return nil, ErrNoInput
		}
		return nil, nil
	}
	return jpeg, nil
}

// complete is one cached, breaker-guarded model call bounded by the service
// timeout.
func (s *Service) complete(ctx context.Context, op, prompt string, jpeg []byte) (string, error) {
	key := CacheKey(s.model, prompt, jpeg)
	if v, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("ai cache get failed", zap.Error(err))
	} else if ok {
		s.metrics.cacheHit()
		s.metrics.call(op, "cached")
		return v, nil
	}

	reply, err := s.breaker.Execute(func() (string, error) {
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()

		out, err := s.gen.Generate(cctx, prompt, jpeg)
		if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", ErrTimeout
		}
		return out, err
	})
	if err != nil {
		s.metrics.call(op, resultLabel(err))
		s.log.Warn("ai call failed", zap.String("op", op), zap.Error(err))
		return "", err
	}
	s.metrics.call(op, "ok")

	if err := s.cache.Set(ctx, key, reply); err != nil {
		s.log.Warn("ai cache set failed", zap.Error(err))
	}
	return reply, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
