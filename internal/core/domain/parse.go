package domain

import (
	"regexp"
	"strings"
)

var leafRe = regexp.MustCompile(`^(?:(\w+):)?(\d+/\w+)$`)

// ParseLeaf interpreta "[selector:]N/unit", por exemplo "apikey:10/s" ou "15/m".
func ParseLeaf(expr string) (Leaf, error) {
	m := leafRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return Leaf{}, NewConfigurationError("rule", "malformed rule %q", expr)
	}

	rate, err := ParseRate(m[2])
	if err != nil {
		return Leaf{}, err
	}

	return Leaf{Selector: m[1], Rate: rate}, nil
}

// ParseRule interpreta uma folha ou uma expressão com And(...)/Or(...), como
// "And(apikey:100/h, Or(10/s, 'apikey:5/s'))".
func ParseRule(expr string) (Rule, error) {
	p := &ruleParser{input: expr}
	rule, err := p.parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}
	if err := Validate(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func MustParseRule(expr string) Rule {
	rule, err := ParseRule(expr)
	if err != nil {
		panic(err)
	}
	return rule
}

type ruleParser struct {
	input string
}

func (p *ruleParser) parse(expr string) (Rule, error) {
	if expr == "" {
		return nil, NewConfigurationError("rule", "empty rule in %q", p.input)
	}

	open := strings.IndexByte(expr, '(')
	if open < 0 {
		return ParseLeaf(unquote(expr))
	}
	if !strings.HasSuffix(expr, ")") {
		return nil, NewConfigurationError("rule", "unbalanced parentheses in %q", p.input)
	}

	name := strings.TrimSpace(expr[:open])
	args, err := p.split(expr[open+1 : len(expr)-1])
	if err != nil {
		return nil, err
	}

	children := make([]Rule, 0, len(args))
	for _, arg := range args {
		child, err := p.parse(arg)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch strings.ToLower(name) {
	case "and":
		return And(children...), nil
	case "or":
		return Or(children...), nil
	default:
		return nil, NewConfigurationError("rule", "unknown operator %q in %q", name, p.input)
	}
}

// split separa argumentos por vírgulas de nível zero.
func (p *ruleParser) split(body string) ([]string, error) {
	var (
		args  []string
		depth int
		start int
	)
	for i, c := range body {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, NewConfigurationError("rule", "unbalanced parentheses in %q", p.input)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, NewConfigurationError("rule", "unbalanced parentheses in %q", p.input)
	}

	last := strings.TrimSpace(body[start:])
	if last == "" && len(args) == 0 {
		return nil, nil
	}
	return append(args, last), nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
