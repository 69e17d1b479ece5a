package domain

import "strings"

// Rule é um nó da árvore de regras: Leaf, AndRule ou OrRule.
type Rule interface {
	String() string
	isRule()
}

// Leaf limita um único identificador. Selector vazio limita a operação inteira.
type Leaf struct {
	Selector string
	Rate     Rate
}

// AndRule bloqueia somente quando todos os filhos bloqueiam.
type AndRule struct {
	Children []Rule
}

// OrRule bloqueia quando qualquer filho bloqueia.
type OrRule struct {
	Children []Rule
}

func (Leaf) isRule()    {}
func (AndRule) isRule() {}
func (OrRule) isRule()  {}

func (l Leaf) String() string {
	if l.Selector == "" {
		return l.Rate.String()
	}
	return l.Selector + ":" + l.Rate.String()
}

func (a AndRule) String() string { return combinatorString("And", a.Children) }
func (o OrRule) String() string  { return combinatorString("Or", o.Children) }

func combinatorString(name string, children []Rule) string {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		if child == nil {
			parts = append(parts, "<nil>")
			continue
		}
		parts = append(parts, child.String())
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

func And(children ...Rule) AndRule {
	return AndRule{Children: children}
}

func Or(children ...Rule) OrRule {
	return OrRule{Children: children}
}

// Leaves percorre a árvore da esquerda para a direita, mantendo duplicatas.
func Leaves(rule Rule) []Leaf {
	var out []Leaf
	walkLeaves(rule, func(l Leaf) { out = append(out, l) })
	return out
}

// SelectorNames devolve os selectors usados pela árvore, sem repetição e em ordem de aparição.
func SelectorNames(rule Rule) []string {
	seen := make(map[string]struct{})
	var names []string
	walkLeaves(rule, func(l Leaf) {
		if l.Selector == "" {
			return
		}
		if _, ok := seen[l.Selector]; ok {
			return
		}
		seen[l.Selector] = struct{}{}
		names = append(names, l.Selector)
	})
	return names
}

func walkLeaves(rule Rule, fn func(Leaf)) {
	switch r := rule.(type) {
	case Leaf:
		fn(r)
	case AndRule:
		for _, child := range r.Children {
			walkLeaves(child, fn)
		}
	case OrRule:
		for _, child := range r.Children {
			walkLeaves(child, fn)
		}
	}
}

// Validate garante que a árvore tem ao menos uma folha, nenhum combinador vazio e taxas positivas.
func Validate(rule Rule) error {
	if rule == nil {
		return NewConfigurationError("rule", "rule tree is empty")
	}
	return validateNode(rule)
}

func validateNode(rule Rule) error {
	switch r := rule.(type) {
	case Leaf:
		return r.Rate.validate()
	case AndRule:
		return validateChildren("And", r.Children)
	case OrRule:
		return validateChildren("Or", r.Children)
	case nil:
		return NewConfigurationError("rule", "nil child rule")
	default:
		return NewConfigurationError("rule", "unsupported rule type %T", rule)
	}
}

func validateChildren(name string, children []Rule) error {
	if len(children) == 0 {
		return NewConfigurationError("rule", "%s requires at least one child", name)
	}
	for _, child := range children {
		if err := validateNode(child); err != nil {
			return err
		}
	}
	return nil
}
