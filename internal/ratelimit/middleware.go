package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/muchq/sgdmaster/internal/httpapi"
)

// KeyExtractor derives the per-client rate-limit key from a request.
type KeyExtractor interface {
	Apply(r *http.Request) string
}

// RemoteIPKeyExtractor keys on X-Forwarded-For, falling back to RemoteAddr —
// the LB populates the former; the latter is only a good fallback locally.
type RemoteIPKeyExtractor struct{}

func (RemoteIPKeyExtractor) Apply(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return ip
}

// Middleware implements httpapi.Middleware, rate-limiting each key
// independently via one Limiter per key.
type Middleware struct {
	Factory   Factory
	Extractor KeyExtractor
	Config    Config

	mu       sync.Mutex
	limiters map[string]Limiter
}

// New builds a Middleware with the given factory, key extractor and config.
func New(factory Factory, extractor KeyExtractor, config Config) httpapi.Middleware {
	return &Middleware{
		Factory:   factory,
		Extractor: extractor,
		Config:    config,
		limiters:  make(map[string]Limiter),
	}
}

func (m *Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := m.Extractor.Apply(r)
		limiter := m.limiterFor(key)
		if limiter.Allow(m.Config.GetOpCost()) {
			next(w, r)
			return
		}
		httpapi.WriteProblem(w, httpapi.Problem{
			StatusCode: http.StatusTooManyRequests,
			ErrorCode:  http.StatusTooManyRequests,
			Message:    "Too Many Requests",
			Detail:     fmt.Sprintf("rate limit exceeded for %s", key),
		})
	}
}

func (m *Middleware) limiterFor(key string) Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		l = m.Factory.NewLimiter(m.Config)
		m.limiters[key] = l
	}
	return l
}
