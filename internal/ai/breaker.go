package ai

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const breakerName = "gemini"

var ErrCircuitOpen = errors.New("ai circuit open")

type Metrics struct {
	Calls        *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
	CacheHits    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecomarket",
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Generative AI calls by operation and result",
		}, []string{"op", "result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ecomarket",
			Subsystem: "ai",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecomarket",
			Subsystem: "ai",
			Name:      "cache_hits_total",
			Help:      "Replies served from the cache",
		}),
	}
	reg.MustRegister(m.Calls, m.BreakerState, m.CacheHits)
	return m
}

func (m *Metrics) call(op, result string) {
	if m != nil {
		m.Calls.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) state(name string, s gobreaker.State) {
	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(stateToFloat(s))
	}
}

type BreakerSettings struct {
	// Trips is the number of consecutive failures that opens the circuit.
	Trips uint32
	// Timeout is how long the circuit stays open before a probe is let through.
	Timeout time.Duration
}

// Breaker guards the upstream model behind a gobreaker circuit. Caller
// cancellations are not counted as failures.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[string]
}

func NewBreaker(s BreakerSettings, log *zap.Logger, m *Metrics) *Breaker {
	if s.Trips == 0 {
		s.Trips = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	m.state(breakerName, gobreaker.StateClosed)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.Trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("ai breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.state(name, to)
		},
	})
	return &Breaker{cb: cb}
}

func (b *Breaker) Execute(fn func() (string, error)) (string, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	return out, err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
