// Package memory is an in-process AggregateStore used for local runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"pipeline-orchestrator/internal/domain"
)

type Document[T any] interface {
	GetID() string
	Clone() T
}

// Store keeps documents in insertion order. Every read and write copies the
// document so callers never share slices with stored state.
type Store[T Document[T]] struct {
	mu    sync.RWMutex
	docs  map[string]T
	order []string
}

func NewStore[T Document[T]]() *Store[T] {
	return &Store[T]{docs: map[string]T{}}
}

func (s *Store[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		var zero T
		return zero, domain.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store[T]) GetAll(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id].Clone())
	}
	return out, nil
}

func (s *Store[T]) Insert(_ context.Context, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := doc.GetID()
	if _, exists := s.docs[id]; exists {
		return domain.ErrConflict
	}
	s.docs[id] = doc.Clone()
	s.order = append(s.order, id)
	return nil
}

func (s *Store[T]) Replace(_ context.Context, id string, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; !exists {
		return domain.ErrNotFound
	}
	s.docs[id] = doc.Clone()
	return nil
}

func (s *Store[T]) Delete(_ context.Context, id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, exists := s.docs[id]
	if !exists {
		var zero T
		return zero, domain.ErrNotFound
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return doc, nil
}
