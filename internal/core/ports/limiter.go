// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/quatrix/rate-limit/internal/core/domain"
)

type RateLimiter interface {
	Check(ctx context.Context, req domain.CheckRequest) (domain.Decision, error)
}
