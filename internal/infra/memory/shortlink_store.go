package memory

import (
	"context"
	"sync"

	"aula-quiz-service/internal/domain"
)

// ShortLinkStore is the in-memory slug -> session mapping. Entries are
// immutable once written.
type ShortLinkStore struct {
	mu    sync.RWMutex
	slugs map[string]string
}

func NewShortLinkStore() *ShortLinkStore {
	return &ShortLinkStore{slugs: make(map[string]string)}
}

func (s *ShortLinkStore) Create(_ context.Context, slug, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.slugs[slug]; taken {
		return domain.ErrSlugTaken
	}
	s.slugs[slug] = sessionID
	return nil
}

func (s *ShortLinkStore) Resolve(_ context.Context, slug string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.slugs[slug]
	if !ok {
		return "", domain.ErrSlugNotFound
	}
	return sessionID, nil
}
