package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aula-quiz-service/internal/domain"
)

// ShortLinkStore keeps the slug -> session mapping in Redis. SETNX enforces
// slug uniqueness across instances; entries never expire because the mapping
// is immutable for the session's lifetime.
type ShortLinkStore struct {
	client *redis.Client
}

func NewShortLinkStore(client *redis.Client) *ShortLinkStore {
	return &ShortLinkStore{client: client}
}

func (s *ShortLinkStore) Create(ctx context.Context, slug, sessionID string) error {
	ok, err := s.client.SetNX(ctx, s.key(slug), sessionID, 0).Result()
	if err != nil {
		return fmt.Errorf("store short link: %w", err)
	}
	if !ok {
		return domain.ErrSlugTaken
	}
	return nil
}

func (s *ShortLinkStore) Resolve(ctx context.Context, slug string) (string, error) {
	sessionID, err := s.client.Get(ctx, s.key(slug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrSlugNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve short link: %w", err)
	}
	return sessionID, nil
}

func (s *ShortLinkStore) key(slug string) string {
	return "quiz:slug:" + slug
}
