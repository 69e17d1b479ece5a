package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

const (
	DefaultLockTTL          = 10 * time.Second
	DefaultLockPollInterval = 100 * time.Millisecond
	DefaultLockTimeout      = 5 * time.Second
)

// LockConfig controla o lock distribuído por escopo.
type LockConfig struct {
	Disabled bool
	// TTL expira o lock caso o dono morra antes de liberar.
	TTL          time.Duration
	PollInterval time.Duration
	// Timeout limita a espera pelo lock. Zero usa DefaultLockTimeout e negativo espera até o contexto acabar.
	Timeout time.Duration
}

type LockToken struct {
	Key   string
	Value string
}

// Lock adquire e libera o lock de um escopo no storage.
type Lock struct {
	locker ports.Locker
	cfg    LockConfig
}

func NewLock(locker ports.Locker, cfg LockConfig) (*Lock, error) {
	if !cfg.Disabled && locker == nil {
		return nil, fmt.Errorf("locker is required when locks are enabled")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultLockPollInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLockTimeout
	}
	return &Lock{locker: locker, cfg: cfg}, nil
}

// Acquire tenta o lock até conseguir, estourar o Timeout (ErrLockTimeout) ou o contexto acabar.
// Com locks desabilitados devolve um token nil.
func (l *Lock) Acquire(ctx context.Context, key string) (*LockToken, error) {
	if l.cfg.Disabled {
		return nil, nil
	}

	token := &LockToken{Key: key, Value: uuid.NewString()}

	var deadline time.Time
	if l.cfg.Timeout > 0 {
		deadline = time.Now().Add(l.cfg.Timeout)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		ok, err := l.locker.TryAcquire(ctx, key, token.Value, l.cfg.TTL)
		if err != nil {
			return nil, storeError("lock", key, err)
		}
		if ok {
			return token, nil
		}

		wait := l.cfg.PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, fmt.Errorf("%w: %s after %s", domain.ErrLockTimeout, key, l.cfg.Timeout)
			}
			wait = min(wait, remaining)
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Release libera o lock. Token nil é ignorado.
func (l *Lock) Release(ctx context.Context, token *LockToken) error {
	if l.cfg.Disabled || token == nil {
		return nil
	}

	err := l.locker.Release(ctx, token.Key, token.Value)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrLockNotHeld):
		return fmt.Errorf("release lock %s: %w", token.Key, err)
	default:
		return storeError("unlock", token.Key, err)
	}
}
