package services

import (
	"context"

	"ludo-arena-backend/internal/models"
)

// ProfileStore is the narrow contract to the external user-profile
// system: this core only ever needs display fields and the lifetime
// winnings the level derivation runs on.
type ProfileStore interface {
	DisplayName(ctx context.Context, uid string) (string, error)
	Avatar(ctx context.Context, uid string) (string, error)
	LifetimeEarnings(ctx context.Context, uid string) (int64, error)
}

// RedisProfileStore serves profiles from the shared store; the real
// profile system writes them, this core only reads.
type RedisProfileStore struct {
	store *RedisService
}

func NewRedisProfileStore(store *RedisService) *RedisProfileStore {
	return &RedisProfileStore{store: store}
}

func (p *RedisProfileStore) profile(ctx context.Context, uid string) (*models.Profile, error) {
	return p.store.GetProfile(ctx, uid)
}

func (p *RedisProfileStore) DisplayName(ctx context.Context, uid string) (string, error) {
	prof, err := p.profile(ctx, uid)
	if err != nil || prof == nil {
		return "", err
	}
	return prof.DisplayName, nil
}

func (p *RedisProfileStore) Avatar(ctx context.Context, uid string) (string, error) {
	prof, err := p.profile(ctx, uid)
	if err != nil || prof == nil {
		return "", err
	}
	return prof.Avatar, nil
}

func (p *RedisProfileStore) LifetimeEarnings(ctx context.Context, uid string) (int64, error) {
	prof, err := p.profile(ctx, uid)
	if err != nil || prof == nil {
		return 0, err
	}
	return prof.LifetimeEarnings, nil
}
