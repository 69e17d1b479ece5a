// Package memory implementa o storage em memória, útil para uma única instância e testes.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

// list guarda os timestamps do mais antigo para o mais recente.
type list struct {
	values    []float64
	expiresAt time.Time
}

type lock struct {
	token     string
	expiresAt time.Time
}

// Storage é seguro para uso concorrente.
type Storage struct {
	mu    sync.Mutex
	lists map[string]*list
	locks map[string]lock
	now   func() time.Time

	logger          *zap.Logger
	cleanupInterval time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
}

var (
	_ ports.Storage = (*Storage)(nil)
	_ ports.Locker  = (*Storage)(nil)
)

type Option func(*Storage)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Storage) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithNow troca o relógio usado para expirar chaves.
func WithNow(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		lists:           make(map[string]*list),
		locks:           make(map[string]lock),
		now:             time.Now,
		logger:          zap.NewNop(),
		cleanupInterval: time.Minute,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Push(_ context.Context, key string, timestamp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.live(key)
	if l == nil {
		l = &list{}
		s.lists[key] = l
	}
	l.values = append(l.values, timestamp)
	return nil
}

func (s *Storage) Trim(_ context.Context, key string, length int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.live(key)
	if l == nil {
		return nil
	}
	if length <= 0 {
		delete(s.lists, key)
		return nil
	}
	if n := int64(len(l.values)); n > length {
		l.values = append([]float64(nil), l.values[n-length:]...)
	}
	return nil
}

func (s *Storage) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.live(key); l != nil {
		l.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *Storage) Index(_ context.Context, key string, index int64) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.live(key)
	if l == nil || index < 0 || index >= int64(len(l.values)) {
		return 0, false, nil
	}
	return l.values[int64(len(l.values))-1-index], true, nil
}

func (s *Storage) TryAcquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if current, ok := s.locks[key]; ok && now.Before(current.expiresAt) {
		return false, nil
	}
	s.locks[key] = lock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *Storage) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.locks[key]
	if !ok || current.token != token || !s.now().Before(current.expiresAt) {
		return domain.ErrLockNotHeld
	}
	delete(s.locks, key)
	return nil
}

// Len devolve o tamanho atual da lista de key.
func (s *Storage) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.live(key); l != nil {
		return len(l.values)
	}
	return 0
}

// Size devolve o número de listas e locks guardados, inclusive expirados ainda não limpos.
func (s *Storage) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists) + len(s.locks)
}

// StartCleanup remove periodicamente listas e locks expirados.
// Para quando ctx é cancelado ou Stop é chamado.
func (s *Storage) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

// Stop encerra a limpeza e espera a goroutine sair. Pode ser chamado várias vezes.
func (s *Storage) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Storage) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0
	for key, l := range s.lists {
		if expired(l.expiresAt, now) {
			delete(s.lists, key)
			cleaned++
		}
	}
	for key, lk := range s.locks {
		if !now.Before(lk.expiresAt) {
			delete(s.locks, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("memory storage cleanup completed",
			zap.Int("cleaned_keys", cleaned),
			zap.Int("remaining_keys", len(s.lists)+len(s.locks)))
	}
}

// live devolve a lista de key, apagando-a se já expirou. Exige s.mu.
func (s *Storage) live(key string) *list {
	l, ok := s.lists[key]
	if !ok {
		return nil
	}
	if expired(l.expiresAt, s.now()) {
		delete(s.lists, key)
		return nil
	}
	return l
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
