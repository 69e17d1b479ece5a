// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// Storage é a lista ordenada (mais recente primeiro) que guarda os timestamps de cada identificador.
type Storage interface {
	Push(ctx context.Context, key string, timestamp float64) error
	Trim(ctx context.Context, key string, length int64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Index devolve o elemento na posição index; ok é false quando a lista é menor.
	Index(ctx context.Context, key string, index int64) (timestamp float64, ok bool, err error)
}

// WindowEntry é um push/trim/expire sobre uma chave.
type WindowEntry struct {
	Key       string
	Timestamp float64
	Length    int64
	TTL       time.Duration
}

// Appender é opcional: aplica push, trim e expire de várias chaves em uma ida ao
// storage, mantendo a ordem de cada chave. Não precisa ser transacional.
type Appender interface {
	Append(ctx context.Context, entries []WindowEntry) error
}

// Locker é a primitiva de exclusão mútua guardada no mesmo storage.
type Locker interface {
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// Clock fornece o instante usado nas janelas.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

type SystemClock struct{}

func (SystemClock) Now(context.Context) (time.Time, error) {
	return time.Now(), nil
}

type ClockFunc func() time.Time

func (f ClockFunc) Now(context.Context) (time.Time, error) {
	return f(), nil
}
