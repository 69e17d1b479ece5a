package domain

import "strings"

const lockPrefix = "lock"

// JoinNonEmpty junta as partes não vazias com sep.
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}

// IdentifierBuilder deriva as chaves de armazenamento de uma operação.
type IdentifierBuilder struct {
	Namespace string
	Key       string
}

// Build retorna "namespace:key:selector:value", omitindo partes vazias.
func (b IdentifierBuilder) Build(selector, value string) string {
	return JoinNonEmpty(":", b.Namespace, b.Key, selector, value)
}

// Scope é a granularidade do lock: "namespace:key".
func (b IdentifierBuilder) Scope() string {
	return JoinNonEmpty(":", b.Namespace, b.Key)
}

func (b IdentifierBuilder) LockKey() string {
	return lockPrefix + ":" + b.Scope()
}
