// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
	"github.com/quatrix/rate-limit/internal/selector"
)

const rateLimitExceededMessage = "you have reached the maximum number of requests or actions allowed within a certain time frame"

// SelectorFunc extrai o valor de um seletor da requisição.
type SelectorFunc func(r *http.Request) (string, error)

type options struct {
	key       string
	rule      domain.Rule
	failOpen  bool
	logger    *zap.Logger
	selectors map[string]SelectorFunc
}

type Option func(*options)

// WithKey fixa a chave da operação. Sem ela, usa o padrão da rota do chi.
func WithKey(key string) Option {
	return func(o *options) { o.key = key }
}

// WithRule envia a árvore em cada Check. Sem ela, o limiter usa a regra registrada para a chave.
func WithRule(rule domain.Rule) Option {
	return func(o *options) { o.rule = rule }
}

// WithFailOpen deixa a requisição passar quando o storage ou o lock falham.
func WithFailOpen(failOpen bool) Option {
	return func(o *options) { o.failOpen = failOpen }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSelector adiciona ou substitui um seletor.
func WithSelector(name string, fn SelectorFunc) Option {
	return func(o *options) { o.selectors[name] = fn }
}

func NewRateLimiterMiddleware(limiter ports.RateLimiter, opts ...Option) func(http.Handler) http.Handler {
	o := &options{
		logger: zap.NewNop(),
		selectors: map[string]SelectorFunc{
			"ip":     func(r *http.Request) (string, error) { return extractIP(r), nil },
			"apikey": func(r *http.Request) (string, error) { return strings.TrimSpace(r.Header.Get("API_KEY")), nil },
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := o.keyFor(r)
			values, err := o.values(r)
			if err != nil {
				o.logger.Error("rate limit selectors failed", zap.String("key", key), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			decision, err := limiter.Check(r.Context(), domain.CheckRequest{Key: key, Rule: o.rule, Selectors: values})
			if err != nil {
				o.handleError(w, r, next, key, err)
				return
			}

			if !decision.Allowed {
				writeTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (o *options) keyFor(r *http.Request) string {
	if o.key != "" {
		return o.key
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func (o *options) values(r *http.Request) (domain.SelectorValues, error) {
	resolvers := make(map[string]selector.Resolver, len(o.selectors))
	for name, fn := range o.selectors {
		fn := fn
		resolvers[name] = selector.Func(func() (string, error) { return fn(r) })
	}
	if o.rule != nil {
		return selector.Values(o.rule, resolvers, nil)
	}
	return selector.Resolve(resolvers)
}

func (o *options) handleError(w http.ResponseWriter, r *http.Request, next http.Handler, key string, err error) {
	if domain.IsBlockedError(err) {
		writeTooManyRequests(w)
		return
	}

	transient := domain.IsStoreUnavailable(err) || domain.IsLockTimeout(err)
	if transient && o.failOpen {
		o.logger.Warn("rate limiter unavailable, failing open", zap.String("key", key), zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}

	o.logger.Error("rate limiter failed",
		zap.String("key", key),
		zap.String("kind", domain.ErrorKind(err)),
		zap.Error(err))
	if domain.IsLockTimeout(err) {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func extractIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xRealIP != "" {
		return xRealIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(rateLimitExceededMessage))
}
