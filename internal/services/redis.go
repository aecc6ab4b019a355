package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisService is the shared state store. All cross-worker consistency
// rests on two primitives it exposes: a per-key optimistic
// compare-and-swap (WATCH + MULTI, retried on conflict) and best-effort
// batched writes (pipelines). Nothing here takes more than one key into
// a transaction.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// getJSON loads key into dest; the bool is false when the key is absent.
func (s *RedisService) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %v", key, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %v", key, err)
	}
	return true, nil
}

func (s *RedisService) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", key, err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// watchUpdate runs fn under a WATCH on key and retries on write
// conflicts. fn reads current state through tx and stages its writes in
// a TxPipelined block; returning an error aborts without writing.
// maxRetries <= 0 retries until the conflict resolves.
func (s *RedisService) watchUpdate(ctx context.Context, key string, maxRetries int, fn func(tx *redis.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if err != redis.TxFailedErr {
			return err
		}
		if maxRetries > 0 && attempt+1 >= maxRetries {
			return err
		}
	}
}

// --------------------------------------------------
// Games & tables
// --------------------------------------------------

func (s *RedisService) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var g models.Game
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyGame, gameID), &g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *RedisService) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	var t models.Table
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyTable, tableID), &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// UpdateGame applies fn to a fresh copy of the game under optimistic
// locking. fn sees the current state on every attempt, so precondition
// checks (turn, phase, liveness) re-run after each conflict; a mutation
// that advances the turn also refreshes LastMoveAt, which is what every
// sleeping watcher re-validates against. Returns nil, nil when the game
// does not exist.
func (s *RedisService) UpdateGame(ctx context.Context, gameID string, fn func(g *models.Game) error) (*models.Game, error) {
	key := fmt.Sprintf(KeyGame, gameID)
	var updated *models.Game

	err := s.watchUpdate(ctx, key, 0, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			updated = nil
			return nil
		}
		if err != nil {
			return err
		}

		var g models.Game
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return fmt.Errorf("failed to unmarshal game %s: %v", gameID, err)
		}

		if err := fn(&g); err != nil {
			return err
		}
		g.UpdatedAt = time.Now().UnixMilli()

		out, err := json.Marshal(&g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, TTLGame)
			return nil
		})
		if err == nil {
			updated = &g
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisService) ActiveGameIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, KeyActiveGames).Result()
}

func (s *RedisService) removeActiveGame(ctx context.Context, gameID string) {
	s.client.SRem(ctx, KeyActiveGames, gameID)
}

// ClaimPayout is the idempotence guard for completion payouts: the
// first caller wins, duplicates of the same completion are no-ops.
func (s *RedisService) ClaimPayout(ctx context.Context, gameID string) (bool, error) {
	return s.client.SetNX(ctx, fmt.Sprintf(KeyPayout, gameID), time.Now().UnixMilli(), TTLPayoutGuard).Result()
}

// --------------------------------------------------
// Queues
// --------------------------------------------------

func (s *RedisService) queueEntryKey(mode models.Mode, entryID string) string {
	return fmt.Sprintf(KeyQueueEntry, mode, entryID)
}

func (s *RedisService) queueIndexKey(mode models.Mode) string {
	return fmt.Sprintf(KeyQueueIndex, mode)
}

func (s *RedisService) PushQueueEntry(ctx context.Context, mode models.Mode, e *models.QueueEntry) error {
	if err := s.setJSON(ctx, s.queueEntryKey(mode, e.ID), e, 0); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.queueIndexKey(mode), redis.Z{
		Score:  float64(e.EnqueuedAt),
		Member: e.ID,
	}).Err()
}

// OldestQueueEntries reads up to n entries ordered by enqueue time.
// Index members whose blob is already gone (claimed or expired) are
// skipped and lazily pruned.
func (s *RedisService) OldestQueueEntries(ctx context.Context, mode models.Mode, n int64) ([]*models.QueueEntry, error) {
	ids, err := s.client.ZRange(ctx, s.queueIndexKey(mode), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue index: %v", err)
	}

	var entries []*models.QueueEntry
	for _, id := range ids {
		var e models.QueueEntry
		ok, err := s.getJSON(ctx, s.queueEntryKey(mode, id), &e)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.client.ZRem(ctx, s.queueIndexKey(mode), id)
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// QueueEntriesOlderThan returns entries whose enqueue time is at or
// before cutoff, oldest first.
func (s *RedisService) QueueEntriesOlderThan(ctx context.Context, mode models.Mode, cutoff int64) ([]*models.QueueEntry, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.queueIndexKey(mode), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, err
	}

	var entries []*models.QueueEntry
	for _, id := range ids {
		var e models.QueueEntry
		ok, err := s.getJSON(ctx, s.queueEntryKey(mode, id), &e)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.client.ZRem(ctx, s.queueIndexKey(mode), id)
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *RedisService) RemoveQueueEntry(ctx context.Context, mode models.Mode, entryID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.queueEntryKey(mode, entryID))
	pipe.ZRem(ctx, s.queueIndexKey(mode), entryID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisService) PushTeamTicket(ctx context.Context, t *models.TeamTicket) error {
	if err := s.setJSON(ctx, fmt.Sprintf(KeyTeamTicket, t.ID), t, 0); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, KeyTeamIndex, redis.Z{
		Score:  float64(t.CreatedAt),
		Member: t.ID,
	}).Err()
}

func (s *RedisService) OldestTeamTickets(ctx context.Context, n int64) ([]*models.TeamTicket, error) {
	ids, err := s.client.ZRange(ctx, KeyTeamIndex, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadTickets(ctx, ids)
}

func (s *RedisService) TeamTicketsOlderThan(ctx context.Context, cutoff int64) ([]*models.TeamTicket, error) {
	ids, err := s.client.ZRangeByScore(ctx, KeyTeamIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.loadTickets(ctx, ids)
}

func (s *RedisService) loadTickets(ctx context.Context, ids []string) ([]*models.TeamTicket, error) {
	var tickets []*models.TeamTicket
	for _, id := range ids {
		var t models.TeamTicket
		ok, err := s.getJSON(ctx, fmt.Sprintf(KeyTeamTicket, id), &t)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.client.ZRem(ctx, KeyTeamIndex, id)
			continue
		}
		tickets = append(tickets, &t)
	}
	return tickets, nil
}

func (s *RedisService) RemoveTeamTicket(ctx context.Context, ticketID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(KeyTeamTicket, ticketID))
	pipe.ZRem(ctx, KeyTeamIndex, ticketID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisService) GetTeamTicket(ctx context.Context, ticketID string) (*models.TeamTicket, error) {
	var t models.TeamTicket
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyTeamTicket, ticketID), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// --------------------------------------------------
// Status pointers & profiles
// --------------------------------------------------

func (s *RedisService) SetQueueStatus(ctx context.Context, uid string, st *models.QueueStatus) error {
	st.UpdatedAt = time.Now().UnixMilli()
	return s.setJSON(ctx, fmt.Sprintf(KeyQueueStatus, uid), st, 0)
}

func (s *RedisService) GetQueueStatus(ctx context.Context, uid string) (*models.QueueStatus, error) {
	var st models.QueueStatus
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyQueueStatus, uid), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *RedisService) SetGameStatus(ctx context.Context, uid string, st *models.GameStatus) error {
	st.UpdatedAt = time.Now().UnixMilli()
	return s.setJSON(ctx, fmt.Sprintf(KeyGameStatus, uid), st, 0)
}

func (s *RedisService) GetGameStatus(ctx context.Context, uid string) (*models.GameStatus, error) {
	var st models.GameStatus
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyGameStatus, uid), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *RedisService) SaveProfile(ctx context.Context, p *models.Profile) error {
	return s.setJSON(ctx, fmt.Sprintf(KeyProfile, p.UID), p, 0)
}

func (s *RedisService) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	var p models.Profile
	ok, err := s.getJSON(ctx, fmt.Sprintf(KeyProfile, uid), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// --------------------------------------------------
// Rate limiting
// --------------------------------------------------

func (s *RedisService) CheckRateLimit(ctx context.Context, uid, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, uid, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}
