package storage

import (
	"fmt"
	"sort"
)

// Set stores a value under (namespace, key). An absent namespace is
// created on first write.
func (s *Session) Set(namespace, key, value string) {
	if namespace == "" {
		namespace = defaultNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]string)
		s.data[namespace] = ns
	}
	ns[key] = value
}

// Get returns the value for (namespace, key). A missing key yields
// ErrKeyNotFound, never an empty value.
func (s *Session) Get(namespace, key string) (string, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[namespace][key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrKeyNotFound, namespace, key)
	}
	return v, nil
}

// Del removes (namespace, key) and reports whether it existed.
func (s *Session) Del(namespace, key string) bool {
	if namespace == "" {
		namespace = defaultNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		return false
	}
	if _, ok := ns[key]; !ok {
		return false
	}
	delete(ns, key)
	return true
}

// Keys lists the keys in a namespace, sorted. An unknown namespace
// yields an empty list.
func (s *Session) Keys(namespace string) []string {
	if namespace == "" {
		namespace = defaultNamespace
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data[namespace]))
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
