package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

// Config agrega as opções do serviço de rate limiting.
type Config struct {
	// Namespace prefixa identificadores e locks para isolar deployments no mesmo storage.
	Namespace string
	Lock      LockConfig
}

// Option personaliza o serviço.
type Option func(*RateLimiterService)

func WithClock(clock ports.Clock) Option {
	return func(s *RateLimiterService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *RateLimiterService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(recorder ports.Recorder) Option {
	return func(s *RateLimiterService) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithLocker usa um Locker diferente do storage.
func WithLocker(locker ports.Locker) Option {
	return func(s *RateLimiterService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// RateLimiterService implementa a lógica central de rate limiting.
type RateLimiterService struct {
	config     Config
	accountant *Accountant
	evaluator  *Evaluator
	lock       *Lock
	locker     ports.Locker
	clock      ports.Clock
	logger     *zap.Logger
	recorder   ports.Recorder

	mu    sync.RWMutex
	rules map[string]domain.Rule
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(storage ports.Storage, cfg Config, opts ...Option) (*RateLimiterService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	accountant := NewAccountant(storage)
	s := &RateLimiterService{
		config:     cfg,
		accountant: accountant,
		evaluator:  NewEvaluator(accountant),
		clock:      ports.SystemClock{},
		logger:     zap.NewNop(),
		recorder:   ports.NopRecorder{},
		rules:      make(map[string]domain.Rule),
	}
	if locker, ok := storage.(ports.Locker); ok {
		s.locker = locker
	}
	for _, opt := range opts {
		opt(s)
	}

	lock, err := NewLock(s.locker, cfg.Lock)
	if err != nil {
		return nil, err
	}
	s.lock = lock

	return s, nil
}

// Define registra a árvore de regras de key para que outras chamadas compartilhem os contadores.
func (s *RateLimiterService) Define(key string, rule domain.Rule) error {
	if strings.TrimSpace(key) == "" {
		return domain.NewConfigurationError("key", "key is required")
	}
	if err := domain.Validate(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[key]; ok {
		return domain.NewConfigurationError("key", "rules already defined for key %q", key)
	}
	s.rules[key] = rule
	return nil
}

// Rule devolve a árvore registrada para key.
func (s *RateLimiterService) Rule(key string) (domain.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[key]
	return rule, ok
}

// Check avalia a árvore e, se liberada, registra a requisição em todos os identificadores.
func (s *RateLimiterService) Check(ctx context.Context, req domain.CheckRequest) (decision domain.Decision, err error) {
	defer func() {
		if err != nil {
			s.recorder.ObserveError(req.Key, domain.ErrorKind(err))
			return
		}
		s.recorder.ObserveCheck(req.Key, decision.Allowed)
	}()

	rule, err := s.ruleFor(req)
	if err != nil {
		return domain.Decision{}, err
	}

	ids := domain.IdentifierBuilder{Namespace: s.config.Namespace, Key: req.Key}
	windows, err := domain.Resolve(ids, rule, req.Selectors)
	if err != nil {
		return domain.Decision{}, err
	}

	started := time.Now()
	token, err := s.lock.Acquire(ctx, ids.LockKey())
	if err != nil {
		s.logger.Warn("rate limit lock not acquired",
			zap.String("key", req.Key),
			zap.String("scope", ids.Scope()),
			zap.Error(err))
		return domain.Decision{}, err
	}
	s.recorder.ObserveLockWait(req.Key, time.Since(started))

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.releaseTimeout())
		defer cancel()

		releaseErr := s.lock.Release(releaseCtx, token)
		if releaseErr == nil {
			return
		}
		s.logger.Warn("rate limit lock not released",
			zap.String("key", req.Key),
			zap.String("scope", ids.Scope()),
			zap.Error(releaseErr))
		if err == nil && !errors.Is(releaseErr, domain.ErrLockNotHeld) {
			err = releaseErr
		}
	}()

	now, err := s.clock.Now(ctx)
	if err != nil {
		return domain.Decision{}, storeError("time", ids.Scope(), err)
	}

	eval, err := s.evaluator.Evaluate(ctx, ids, rule, req.Selectors, now)
	if err != nil {
		return domain.Decision{}, err
	}

	decision = domain.Decision{Key: req.Key, Touched: eval.Touched}
	if eval.Blocked {
		s.logger.Debug("rate limit reached",
			zap.String("key", req.Key),
			zap.Strings("touched", eval.Touched))
		return decision, nil
	}

	if err := s.accountant.Record(ctx, windows, now); err != nil {
		return domain.Decision{}, err
	}

	decision.Allowed = true
	decision.Recorded = sortedKeys(windows)
	s.logger.Debug("rate limit passed",
		zap.String("key", req.Key),
		zap.Strings("recorded", decision.Recorded))
	return decision, nil
}

// Do executa fn somente quando Check libera a operação; caso contrário devolve *domain.BlockedError.
func (s *RateLimiterService) Do(ctx context.Context, req domain.CheckRequest, fn func(context.Context) error) error {
	decision, err := s.Check(ctx, req)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &domain.BlockedError{Decision: decision}
	}
	return fn(ctx)
}

func (s *RateLimiterService) ruleFor(req domain.CheckRequest) (domain.Rule, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, domain.NewConfigurationError("key", "key is required")
	}
	if req.Rule != nil {
		return req.Rule, nil
	}

	rule, ok := s.Rule(req.Key)
	if !ok {
		return nil, domain.NewConfigurationError("key", "no rules defined for key %q", req.Key)
	}
	return rule, nil
}

func (c Config) releaseTimeout() time.Duration {
	if c.Lock.TTL > 0 {
		return c.Lock.TTL
	}
	return DefaultLockTTL
}

func sortedKeys(windows map[string]domain.Window) []string {
	keys := make([]string, 0, len(windows))
	for k := range windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
