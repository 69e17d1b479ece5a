package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBlocked          = errors.New("rate limit exceeded")
	ErrConfiguration    = errors.New("invalid rate limit configuration")
	ErrLockTimeout      = errors.New("timed out waiting for rate limit lock")
	ErrLockNotHeld      = errors.New("rate limit lock not held")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// ConfigurationError descreve uma regra, selector ou chave inválida.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BlockedError carrega a decisão que bloqueou a operação.
type BlockedError struct {
	Decision Decision
}

func (e *BlockedError) Error() string {
	if e.Decision.Key == "" {
		return ErrBlocked.Error()
	}
	return fmt.Sprintf("%s for %s", ErrBlocked, e.Decision.Key)
}

func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}

func IsBlockedError(err error) bool {
	return errors.Is(err, ErrBlocked)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// ErrorKind classifica um erro para logs e métricas.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfigurationError(err):
		return "configuration"
	case IsLockTimeout(err):
		return "lock_timeout"
	case IsStoreUnavailable(err):
		return "store_unavailable"
	case IsBlockedError(err):
		return "blocked"
	default:
		return "unknown"
	}
}
