package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

// Accountant implementa a janela deslizante sobre a lista de cada identificador.
type Accountant struct {
	storage ports.Storage
}

func NewAccountant(storage ports.Storage) *Accountant {
	return &Accountant{storage: storage}
}

// Exceeded lê o elemento rate.Requests-1. A janela está cheia quando ele tem menos de rate.Span.
func (a *Accountant) Exceeded(ctx context.Context, identifier string, rate domain.Rate, now time.Time) (bool, error) {
	ts, ok, err := a.storage.Index(ctx, identifier, rate.Requests-1)
	if err != nil {
		return false, storeError("index", identifier, err)
	}
	if !ok {
		return false, nil
	}

	return toSeconds(now)-ts < rate.Span.Seconds(), nil
}

// Record registra now em cada identificador: push, trim e expire, nessa ordem.
func (a *Accountant) Record(ctx context.Context, windows map[string]domain.Window, now time.Time) error {
	if len(windows) == 0 {
		return nil
	}
	ts := toSeconds(now)

	ids := make([]string, 0, len(windows))
	for id := range windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if appender, ok := a.storage.(ports.Appender); ok {
		entries := make([]ports.WindowEntry, 0, len(ids))
		for _, id := range ids {
			w := windows[id]
			entries = append(entries, ports.WindowEntry{
				Key:       id,
				Timestamp: ts,
				Length:    w.MaxRequests,
				TTL:       retention(w.MaxSpan),
			})
		}
		if err := appender.Append(ctx, entries); err != nil {
			return storeError("append", fmt.Sprintf("%d keys", len(entries)), err)
		}
		return nil
	}

	for _, id := range ids {
		w := windows[id]
		if err := a.storage.Push(ctx, id, ts); err != nil {
			return storeError("push", id, err)
		}
		if err := a.storage.Trim(ctx, id, w.MaxRequests); err != nil {
			return storeError("trim", id, err)
		}
		if err := a.storage.Expire(ctx, id, retention(w.MaxSpan)); err != nil {
			return storeError("expire", id, err)
		}
	}
	return nil
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// retention arredonda para segundos inteiros, mínimo de 1s.
func retention(span time.Duration) time.Duration {
	ttl := span.Round(time.Second)
	if ttl < span {
		ttl += time.Second
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func storeError(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreUnavailable, op, key, err)
}
