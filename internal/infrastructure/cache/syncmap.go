package cache

import "sync"

// syncMap is a typed view over sync.Map for pointer entries.
type syncMap[T any] struct {
	m sync.Map
}

func (s *syncMap[T]) load(key string) (*T, bool) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

func (s *syncMap[T]) store(key string, value *T) {
	s.m.Store(key, value)
}

func (s *syncMap[T]) delete(key string) {
	s.m.Delete(key)
}

func (s *syncMap[T]) clear() {
	s.m.Range(func(key, _ any) bool {
		s.m.Delete(key)
		return true
	})
}

func (s *syncMap[T]) len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// deleteFunc removes entries for which drop returns true and reports how many
// were removed.
func (s *syncMap[T]) deleteFunc(drop func(*T) bool) int {
	n := 0
	s.m.Range(func(key, value any) bool {
		if drop(value.(*T)) {
			s.m.Delete(key)
			n++
		}
		return true
	})
	return n
}
