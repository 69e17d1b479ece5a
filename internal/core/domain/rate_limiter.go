// Package domain concentra entidades e estruturas centrais do rate limiter.
package domain

// CheckRequest descreve uma tentativa de executar a operação Key.
// Rule nil usa a árvore registrada para Key.
type CheckRequest struct {
	Key       string
	Rule      Rule
	Selectors SelectorValues
}

type Decision struct {
	Allowed bool
	Key     string
	// Touched são os identificadores lidos durante a avaliação.
	Touched []string
	// Recorded são os identificadores que receberam a requisição; vazio quando bloqueada.
	Recorded []string
}
