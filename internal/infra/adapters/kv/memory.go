package kv

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	str       string
	set       map[string]struct{}
	hash      map[string]string
	expiresAt time.Time
}

// memoryStore - однопроцессная реализация для dev и тестов
type memoryStore struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

func newMemoryStoreWithClock(now func() time.Time) *memoryStore {
	return &memoryStore{data: make(map[string]*entry), now: now}
}

// get возвращает живую запись, вычищая протухшую. Вызывать под mu
func (s *memoryStore) get(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *memoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *memoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil || e.set == nil {
		return nil
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *memoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (s *memoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *memoryStore) HSet(_ context.Context, key string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string, len(values))
	}
	for k, v := range values {
		e.hash[k] = v
	}
	return nil
}

func (s *memoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	e := s.get(key)
	if e == nil {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &entry{str: "0", expiresAt: s.now().Add(ttl)}
		s.data[key] = e
	}

	n, err := strconv.ParseInt(e.str, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.str = strconv.FormatInt(n, 10)

	return n, nil
}

func (s *memoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{str: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.get(key); e != nil {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return "", ErrNotFound
	}
	delete(s.data, key)
	return e.str, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memoryStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for k := range s.data {
		if s.get(k) == nil {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}
