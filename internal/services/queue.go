package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"ludo-arena-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// QueueManager provides the lock and claim/restore primitives every
// pairing strategy builds on. A claim is a conditional read-then-delete:
// exactly one of any number of concurrent claimers gets the entry, so a
// player can never be matched twice.
type QueueManager struct {
	store *RedisService
}

func NewQueueManager(store *RedisService) *QueueManager {
	return &QueueManager{store: store}
}

// errClaimLost marks a claim that found the entry gone or owned by
// someone else. It never escapes this file.
var errClaimLost = errors.New("claim lost")

// AcquireLock takes the named pairing lock unless an unexpired holder
// exists. The lock value is the acquisition time, so a crashed holder
// self-heals: anyone may overwrite a value older than ttl. A false
// return is not an error, it means another worker is already pairing.
func (q *QueueManager) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyLock, name)
	acquired := false

	err := q.store.watchUpdate(ctx, key, 1, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		now := time.Now().UnixMilli()
		if err == nil {
			held, _ := strconv.ParseInt(val, 10, 64)
			if now-held < ttl.Milliseconds() {
				return errClaimLost // live lock, back off
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, now, 0)
			return nil
		})
		if err == nil {
			acquired = true
		}
		return err
	})
	if err == errClaimLost || err == redis.TxFailedErr {
		return false, nil
	}
	return acquired, err
}

func (q *QueueManager) ReleaseLock(ctx context.Context, name string) {
	if err := q.store.client.Del(ctx, fmt.Sprintf(KeyLock, name)).Err(); err != nil {
		log.Printf("LOCK_RELEASE: failed to release %s: %v", name, err)
	}
}

// WithLock runs fn while holding the named lock, retrying acquisition a
// few times with randomized backoff before giving up. Giving up is
// silent: the next trigger or sweep retries the whole pairing attempt.
func (q *QueueManager) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < 5; attempt++ {
		ok, err := q.AcquireLock(ctx, name, LockTTL)
		if err != nil {
			return err
		}
		if ok {
			defer q.ReleaseLock(ctx, name)
			return fn(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200*time.Millisecond + time.Duration(rand.Intn(400))*time.Millisecond):
		}
	}
	log.Printf("LOCK_BUSY: could not acquire %s after retries", name)
	return nil
}

// ClaimEntry atomically removes a queue entry and returns it. nil, nil
// means the claim was lost: the entry no longer exists (cancelled,
// claimed by a concurrent pairing attempt) or, when expectedUID is
// given, its owner changed since the caller read it.
func (q *QueueManager) ClaimEntry(ctx context.Context, mode models.Mode, entryID, expectedUID string) (*models.QueueEntry, error) {
	key := q.store.queueEntryKey(mode, entryID)
	var claimed *models.QueueEntry

	err := q.store.watchUpdate(ctx, key, 0, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errClaimLost
		}
		if err != nil {
			return err
		}

		var e models.QueueEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("corrupt queue entry %s: %v", entryID, err)
		}
		if expectedUID != "" && e.UID != expectedUID {
			return errClaimLost
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, q.store.queueIndexKey(mode), entryID)
			return nil
		})
		if err == nil {
			claimed = &e
		}
		return err
	})
	if err == errClaimLost {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RestoreEntry re-inserts a claimed entry after a downstream failure so
// the player is not silently dropped. Best effort: ordering is restored
// via the original enqueue timestamp but exact position is not promised.
func (q *QueueManager) RestoreEntry(ctx context.Context, mode models.Mode, e *models.QueueEntry) {
	if e == nil {
		return
	}
	log.Printf("QUEUE_RESTORE: restoring %s (%s) to queue %s", e.ID, e.UID, mode)
	if err := q.store.PushQueueEntry(ctx, mode, e); err != nil {
		log.Printf("QUEUE_RESTORE: critical, failed to restore %s: %v", e.ID, err)
	}
}

// ClaimTicket is ClaimEntry for team tickets.
func (q *QueueManager) ClaimTicket(ctx context.Context, ticketID string) (*models.TeamTicket, error) {
	key := fmt.Sprintf(KeyTeamTicket, ticketID)
	var claimed *models.TeamTicket

	err := q.store.watchUpdate(ctx, key, 0, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errClaimLost
		}
		if err != nil {
			return err
		}

		var t models.TeamTicket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return fmt.Errorf("corrupt team ticket %s: %v", ticketID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, KeyTeamIndex, ticketID)
			return nil
		})
		if err == nil {
			claimed = &t
		}
		return err
	})
	if err == errClaimLost {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *QueueManager) RestoreTicket(ctx context.Context, t *models.TeamTicket) {
	if t == nil {
		return
	}
	log.Printf("QUEUE_RESTORE: restoring team ticket %s", t.ID)
	if err := q.store.PushTeamTicket(ctx, t); err != nil {
		log.Printf("QUEUE_RESTORE: critical, failed to restore ticket %s: %v", t.ID, err)
	}
}
