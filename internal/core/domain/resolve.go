package domain

import "time"

// SelectorValues mapeia o nome do selector para o valor já resolvido na chamada.
// Um valor vazio desativa as folhas daquele selector.
type SelectorValues map[string]string

// Window é a retenção exigida por um identificador: o maior Requests e o maior
// Span entre todas as folhas que caem nele, calculados de forma independente.
type Window struct {
	MaxRequests int64
	MaxSpan     time.Duration
}

// LeafIdentifier devolve o identificador da folha. active é false quando o
// selector existe mas tem valor vazio.
func (b IdentifierBuilder) LeafIdentifier(leaf Leaf, values SelectorValues) (id string, active bool, err error) {
	if leaf.Selector == "" {
		return b.Build("", ""), true, nil
	}

	value, ok := values[leaf.Selector]
	if !ok {
		return "", false, NewConfigurationError("selector", "no value for selector %q", leaf.Selector)
	}
	if value == "" {
		return "", false, nil
	}

	return b.Build(leaf.Selector, value), true, nil
}

// Resolve percorre todas as folhas e agrega a janela por identificador.
func Resolve(b IdentifierBuilder, rule Rule, values SelectorValues) (map[string]Window, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}

	windows := make(map[string]Window)
	for _, leaf := range Leaves(rule) {
		id, active, err := b.LeafIdentifier(leaf, values)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}

		w := windows[id]
		w.MaxRequests = max(w.MaxRequests, leaf.Rate.Requests)
		w.MaxSpan = max(w.MaxSpan, leaf.Rate.Span)
		windows[id] = w
	}

	return windows, nil
}
