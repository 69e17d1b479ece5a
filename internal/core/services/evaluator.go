package services

import (
	"context"
	"fmt"
	"time"

	"github.com/quatrix/rate-limit/internal/core/domain"
)

// Evaluation é o resultado de percorrer a árvore.
type Evaluation struct {
	Blocked bool
	// Touched lista, em ordem de leitura, os identificadores consultados.
	Touched []string
}

// Evaluator percorre a árvore com curto-circuito: Or para no primeiro filho
// bloqueado e And para no primeiro filho livre.
type Evaluator struct {
	accountant *Accountant
}

func NewEvaluator(accountant *Accountant) *Evaluator {
	return &Evaluator{accountant: accountant}
}

func (e *Evaluator) Evaluate(ctx context.Context, ids domain.IdentifierBuilder, rule domain.Rule, values domain.SelectorValues, now time.Time) (Evaluation, error) {
	w := &walk{
		ctx:        ctx,
		accountant: e.accountant,
		ids:        ids,
		values:     values,
		now:        now,
	}

	blocked, err := w.node(rule)
	if err != nil {
		return Evaluation{Touched: w.touched}, err
	}
	return Evaluation{Blocked: blocked, Touched: w.touched}, nil
}

type walk struct {
	ctx        context.Context
	accountant *Accountant
	ids        domain.IdentifierBuilder
	values     domain.SelectorValues
	now        time.Time
	touched    []string
}

func (w *walk) node(rule domain.Rule) (bool, error) {
	switch r := rule.(type) {
	case domain.Leaf:
		return w.leaf(r)
	case domain.OrRule:
		for _, child := range r.Children {
			blocked, err := w.node(child)
			if err != nil || blocked {
				return blocked, err
			}
		}
		return false, nil
	case domain.AndRule:
		for _, child := range r.Children {
			blocked, err := w.node(child)
			if err != nil || !blocked {
				return false, err
			}
		}
		return len(r.Children) > 0, nil
	default:
		return false, domain.NewConfigurationError("rule", "unsupported rule type %T", rule)
	}
}

func (w *walk) leaf(leaf domain.Leaf) (bool, error) {
	id, active, err := w.ids.LeafIdentifier(leaf, w.values)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}

	w.touched = append(w.touched, id)
	blocked, err := w.accountant.Exceeded(w.ctx, id, leaf.Rate, w.now)
	if err != nil {
		return false, fmt.Errorf("evaluate %s: %w", leaf, err)
	}
	return blocked, nil
}
