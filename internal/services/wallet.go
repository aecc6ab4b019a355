package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Ledger owns all wallet mutation. Every committed delta goes through a
// conditional read-modify-write on the single wallet key and leaves an
// append-only WalletTransaction behind, so the balance is always
// reconstructible by replay.
type Ledger struct {
	store *RedisService
}

func NewLedger(store *RedisService) *Ledger {
	return &Ledger{store: store}
}

// TxOptions annotates the audit record for a delta.
type TxOptions struct {
	GameID  string
	TableID string
	Meta    map[string]string
}

// ApplyDelta adds delta (signed) to uid's balance in the given
// currency. A debit that would push the balance negative aborts with
// FailedPrecondition, as does a missing wallet: a wallet is never
// silently materialized with a default balance. Write conflicts retry
// transparently; per-player contention is low by design (a player is in
// at most one pending debit at a time), so retries are unbounded.
func (l *Ledger) ApplyDelta(ctx context.Context, uid string, delta int64, currency models.Currency, txType models.TransactionType, opts TxOptions) error {
	key := fmt.Sprintf(KeyWallet, uid)
	var before, after int64

	err := l.store.watchUpdate(ctx, key, 0, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return apperr.Newf(apperr.FailedPrecondition, "insufficient funds")
		}
		if err != nil {
			return err
		}

		var w models.Wallet
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return fmt.Errorf("corrupt wallet %s: %v", uid, err)
		}

		before = w.Balance(currency)
		after = before + delta
		if after < 0 {
			log.Printf("TRX_FAIL: insufficient funds for %s: has %d %s, needs %d", uid, before, currency, -delta)
			return apperr.Newf(apperr.FailedPrecondition, "insufficient funds")
		}

		w.SetBalance(currency, after)
		w.UpdatedAt = time.Now().UnixMilli()

		out, err := json.Marshal(&w)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	l.appendTransaction(ctx, &models.WalletTransaction{
		ID:            models.GenerateTransactionID(),
		UID:           uid,
		Amount:        delta,
		Currency:      currency,
		Type:          txType,
		BeforeBalance: before,
		AfterBalance:  after,
		GameID:        opts.GameID,
		TableID:       opts.TableID,
		Meta:          opts.Meta,
		CreatedAt:     time.Now().UnixMilli(),
	})

	log.Printf("WALLET: %s %s %+d (%d -> %d) [%s]", uid, currency, delta, before, after, txType)
	return nil
}

// appendTransaction writes the audit record. The balance is already
// committed; a failed append is logged, never propagated.
func (l *Ledger) appendTransaction(ctx context.Context, wt *models.WalletTransaction) {
	key := fmt.Sprintf(KeyWalletTx, wt.UID, wt.ID)
	if err := l.store.setJSON(ctx, key, wt, TTLTransaction); err != nil {
		log.Printf("WALLET_TX: failed to append %s for %s: %v", wt.ID, wt.UID, err)
		return
	}
	if err := l.store.client.ZAdd(ctx, fmt.Sprintf(KeyWalletTxLog, wt.UID), redis.Z{
		Score:  float64(wt.CreatedAt),
		Member: wt.ID,
	}).Err(); err != nil {
		log.Printf("WALLET_TX: failed to index %s for %s: %v", wt.ID, wt.UID, err)
	}
}

// CreateWallet seeds a wallet with the initial credits unless one
// already exists. Used by the auth bootstrap only.
func (l *Ledger) CreateWallet(ctx context.Context, uid string, gold, gems int64) (bool, error) {
	w := &models.Wallet{
		UID:       uid,
		Gold:      gold,
		Gems:      gems,
		UpdatedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(w)
	if err != nil {
		return false, err
	}
	created, err := l.store.client.SetNX(ctx, fmt.Sprintf(KeyWallet, uid), data, 0).Result()
	if err != nil {
		return false, err
	}
	if created {
		now := time.Now().UnixMilli()
		l.appendTransaction(ctx, &models.WalletTransaction{
			ID: models.GenerateTransactionID(), UID: uid,
			Amount: gold, Currency: models.CurrencyGold,
			Type: models.TransactionTypeInitial,
			BeforeBalance: 0, AfterBalance: gold, CreatedAt: now,
		})
		l.appendTransaction(ctx, &models.WalletTransaction{
			ID: models.GenerateTransactionID(), UID: uid,
			Amount: gems, Currency: models.CurrencyGems,
			Type: models.TransactionTypeInitial,
			BeforeBalance: 0, AfterBalance: gems, CreatedAt: now,
		})
	}
	return created, nil
}

func (l *Ledger) GetWallet(ctx context.Context, uid string) (*models.Wallet, error) {
	var w models.Wallet
	ok, err := l.store.getJSON(ctx, fmt.Sprintf(KeyWallet, uid), &w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "wallet not found")
	}
	return &w, nil
}

// ListTransactions returns the most recent ledger records for uid.
func (l *Ledger) ListTransactions(ctx context.Context, uid string, limit int64) ([]*models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ids, err := l.store.client.ZRevRange(ctx, fmt.Sprintf(KeyWalletTxLog, uid), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	var out []*models.WalletTransaction
	for _, id := range ids {
		var wt models.WalletTransaction
		ok, err := l.store.getJSON(ctx, fmt.Sprintf(KeyWalletTx, uid, id), &wt)
		if err != nil || !ok {
			continue
		}
		out = append(out, &wt)
	}
	return out, nil
}

// refundAll applies inverse deltas for every already-debited party.
// This is the compensation half of every multi-party money move: it
// runs before any error is surfaced, so a caller can never observe
// "charged but received nothing".
func (l *Ledger) refundAll(ctx context.Context, paid []models.StakedPlayer, currency models.Currency, reason string) {
	for _, p := range paid {
		err := l.ApplyDelta(ctx, p.UID, +p.Stake, currency, models.TransactionTypeRefund, TxOptions{
			Meta: map[string]string{"reason": reason},
		})
		if err != nil {
			// A failed refund is the one unrecoverable spot; surface loudly.
			log.Printf("REFUND_CRITICAL: failed to refund %d %s to %s (%s): %v", p.Stake, currency, p.UID, reason, err)
		}
	}
}
