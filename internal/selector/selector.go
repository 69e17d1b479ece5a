// Package selector obtém os valores dos seletores antes de chamar o rate limiter.
package selector

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/quatrix/rate-limit/internal/core/domain"
)

// Resolver produz o valor de um seletor para a chamada atual.
type Resolver interface {
	Value() (string, error)
}

// Constant é um valor fixo.
type Constant string

func (c Constant) Value() (string, error) {
	return string(c), nil
}

// Func calcula o valor a cada chamada.
type Func func() (string, error)

func (f Func) Value() (string, error) {
	return f()
}

// FieldOf lê name de object: campo exportado, método sem argumentos ou entrada de mapa.
// A comparação de nomes ignora maiúsculas.
func FieldOf(object any, name string) Resolver {
	return field{object: object, name: name}
}

type field struct {
	object any
	name   string
}

func (f field) Value() (string, error) {
	v, ok, err := lookup(reflect.ValueOf(f.object), f.name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NewConfigurationError("selector", "%s not found on %T", f.name, f.object)
	}
	return v, nil
}

// Resolve executa cada resolver uma vez.
func Resolve(resolvers map[string]Resolver) (domain.SelectorValues, error) {
	values := make(domain.SelectorValues, len(resolvers))
	for name, r := range resolvers {
		v, err := r.Value()
		if err != nil {
			return nil, fmt.Errorf("resolve selector %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

// Values monta os valores dos seletores usados por rule: primeiro explicit, depois
// campos de object. Seletores sem origem ficam de fora e o core os rejeita.
func Values(rule domain.Rule, explicit map[string]Resolver, object any) (domain.SelectorValues, error) {
	resolvers := make(map[string]Resolver)
	for _, name := range domain.SelectorNames(rule) {
		if r, ok := explicit[name]; ok {
			resolvers[name] = r
			continue
		}
		if object != nil {
			resolvers[name] = FieldOf(object, name)
		}
	}
	return Resolve(resolvers)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func lookup(v reflect.Value, name string) (string, bool, error) {
	if !v.IsValid() || isNil(v) {
		return "", false, nil
	}

	if m, ok := method(addressable(v), name); ok {
		return call(m)
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false, nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.IsExported() && strings.EqualFold(sf.Name, name) {
				return format(v.Field(i)), true, nil
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return "", false, nil
		}
		iter := v.MapRange()
		for iter.Next() {
			if strings.EqualFold(iter.Key().String(), name) {
				return format(iter.Value()), true, nil
			}
		}
	}
	return "", false, nil
}

// addressable devolve um ponteiro para v (ou para uma cópia), que enxerga também os
// métodos com receiver ponteiro.
func addressable(v reflect.Value) reflect.Value {
	switch {
	case v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface:
		return v
	case v.CanAddr():
		return v.Addr()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p
}

// method aceita func() T e func() (T, error).
func method(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		if !strings.EqualFold(t.Method(i).Name, name) {
			continue
		}
		fn := v.Method(i)
		ft := fn.Type()
		switch {
		case ft.NumIn() != 0:
			return reflect.Value{}, false
		case ft.NumOut() == 1:
			return fn, true
		case ft.NumOut() == 2 && ft.Out(1) == errorType:
			return fn, true
		}
		return reflect.Value{}, false
	}
	return reflect.Value{}, false
}

func call(fn reflect.Value) (string, bool, error) {
	out := fn.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return "", false, out[1].Interface().(error)
	}
	return format(out[0]), true, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return v.IsNil()
	}
	return false
}

// format converte para string; ponteiros nil viram "".
func format(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v.Interface())
}
