package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
)

// LobbyService runs the ad-hoc paths into a private game: open tables a
// guest can walk into, and guest-to-host invites the host approves.
// Either path ends in the same debit-then-build saga the matchmaker
// uses.
type LobbyService struct {
	store    *RedisService
	ledger   *Ledger
	builder  *GameBuilder
	turns    *TurnService
	cfg      *config.Config
	notifier Notifier
}

func NewLobbyService(store *RedisService, ledger *Ledger, builder *GameBuilder, turns *TurnService, cfg *config.Config, notifier Notifier) *LobbyService {
	return &LobbyService{store: store, ledger: ledger, builder: builder, turns: turns, cfg: cfg, notifier: notifier}
}

// --------------------------------------------------
// Private tables
// --------------------------------------------------

// OpenTable registers host's single open private table. A host can have
// at most one; opening again while one waits is rejected.
func (l *LobbyService) OpenTable(ctx context.Context, host string) (*models.PrivateTable, error) {
	stake := l.cfg.StakeFor(models.ModePrivate)
	w, err := l.ledger.GetWallet(ctx, host)
	if err != nil {
		return nil, err
	}
	if w.Gold < stake {
		return nil, apperr.New(apperr.FailedPrecondition, "insufficient funds")
	}

	key := fmt.Sprintf(KeyPrivateTable, host)
	table := &models.PrivateTable{
		UID:       host,
		Stake:     stake,
		Status:    "waiting",
		CreatedAt: time.Now().UnixMilli(),
	}

	err = l.store.watchUpdate(ctx, key, 5, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var existing models.PrivateTable
			if json.Unmarshal([]byte(data), &existing) == nil && existing.Status == "waiting" {
				return apperr.New(apperr.FailedPrecondition, "you already have an open table")
			}
		}
		raw, err := json.Marshal(table)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, TTLInvite)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("PRIVATE_TABLE: %s opened a table (stake %d)", host, stake)
	return table, nil
}

// CloseTable removes host's waiting table. A matched table is already
// being consumed by a join and cannot be closed.
func (l *LobbyService) CloseTable(ctx context.Context, host string) error {
	key := fmt.Sprintf(KeyPrivateTable, host)
	err := l.store.watchUpdate(ctx, key, 5, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return apperr.New(apperr.NotFound, "no open table")
		}
		if err != nil {
			return err
		}
		var t models.PrivateTable
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		if t.Status != "waiting" {
			return apperr.New(apperr.FailedPrecondition, "table is being joined")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
	return err
}

// errNoSeat marks a join that found no claimable table: missing, or
// already flipped by a concurrent guest.
var errNoSeat = errors.New("no open seat at this table")

// Join results.
const (
	JoinMatched   = "matched"
	JoinPokedBusy = "poked_busy"
	JoinPokedIdle = "poked_idle"
)

// JoinTable lets guest take the empty seat at host's table. The
// waiting -> matched flip is the claim; losing it means the host has no
// open seat right now. That is not an error: the host gets a poke
// either way and the guest learns whether the host is mid-game
// (poked_busy) or merely idle (poked_idle).
func (l *LobbyService) JoinTable(ctx context.Context, host, guest string) (*models.Game, string, error) {
	if host == guest {
		return nil, "", apperr.New(apperr.InvalidArgument, "cannot join your own table")
	}

	key := fmt.Sprintf(KeyPrivateTable, host)
	var table models.PrivateTable

	err := l.store.watchUpdate(ctx, key, 5, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errNoSeat
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(data), &table); err != nil {
			return err
		}
		if table.Status != "waiting" {
			return errNoSeat
		}
		table.Status = "matched"
		raw, err := json.Marshal(&table)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, TTLInvite)
			return nil
		})
		return err
	})
	if errors.Is(err, errNoSeat) {
		return nil, l.pokeHost(ctx, host, guest), nil
	}
	if err != nil {
		return nil, "", err
	}

	g, err := l.buildPrivateGame(ctx, host, guest, table.Stake)
	if err != nil {
		// Reopen the seat so the table is not burned by our failure.
		l.reopenTable(ctx, host, &table)
		return nil, "", err
	}

	if err := l.store.client.Del(ctx, key).Err(); err != nil {
		log.Printf("PRIVATE_TABLE: failed to drop consumed table for %s: %v", host, err)
	}
	return g, JoinMatched, nil
}

// pokeHost nudges a host who has no open seat and classifies why for
// the guest. The poke is best effort; the classification comes from the
// host's live-game pointer.
func (l *LobbyService) pokeHost(ctx context.Context, host, guest string) string {
	result := JoinPokedIdle
	if gs, err := l.store.GetGameStatus(ctx, host); err == nil && gs != nil && gs.Status == "playing" {
		result = JoinPokedBusy
	}
	l.notifier.NotifyUser(host, "table_join_attempt", map[string]any{
		"guest_uid": guest,
		"host_busy": result == JoinPokedBusy,
	})
	log.Printf("PRIVATE_TABLE: %s poked %s (%s)", guest, host, result)
	return result
}

func (l *LobbyService) reopenTable(ctx context.Context, host string, t *models.PrivateTable) {
	t.Status = "waiting"
	if err := l.store.setJSON(ctx, fmt.Sprintf(KeyPrivateTable, host), t, TTLInvite); err != nil {
		log.Printf("PRIVATE_TABLE: critical, failed to reopen table for %s: %v", host, err)
	}
}

// buildPrivateGame collects both stakes (guest first, then host) and
// builds the session. Any failure refunds whoever already paid.
func (l *LobbyService) buildPrivateGame(ctx context.Context, host, guest string, stake int64) (*models.Game, error) {
	debit := func(uid string) error {
		return l.ledger.ApplyDelta(ctx, uid, -stake, models.CurrencyGold, models.TransactionTypeStakeDebit, TxOptions{
			Meta: map[string]string{"reason": "private_match"},
		})
	}
	refund := func(uid string) {
		l.ledger.refundAll(ctx, []models.StakedPlayer{{UID: uid, Stake: stake}}, models.CurrencyGold, "private_rollback")
	}

	if err := debit(guest); err != nil {
		return nil, err
	}
	if err := debit(host); err != nil {
		refund(guest)
		l.notifier.NotifyUser(guest, "match_failed", map[string]any{"reason": "host_insufficient_funds"})
		return nil, apperr.Wrap(apperr.Aborted, "host cannot cover the stake", err)
	}

	seats := []SeatAssignment{
		{UID: host, Seat: 0},
		{UID: guest, Seat: 2},
	}
	g, err := l.builder.CreateActiveGame(ctx, models.ModePrivate, stake, seats)
	if err != nil {
		refund(guest)
		refund(host)
		return nil, err
	}
	log.Printf("PRIVATE_TABLE: %s joined %s -> %s", guest, host, g.ID)
	l.turns.Activate(g)
	return g, nil
}

// --------------------------------------------------
// Invites
// --------------------------------------------------

// SendInvite records guest's challenge to host. One pending invite per
// guest-host pair; a duplicate is rejected until the first resolves.
func (l *LobbyService) SendInvite(ctx context.Context, guest, host string) (*models.Invite, error) {
	if guest == host {
		return nil, apperr.New(apperr.InvalidArgument, "cannot invite yourself")
	}
	if p, err := l.store.GetProfile(ctx, host); err != nil {
		return nil, err
	} else if p == nil {
		return nil, apperr.New(apperr.NotFound, "player not found")
	}

	pendingKey := fmt.Sprintf(KeyPendingInvites, guest)
	added, err := l.store.client.SAdd(ctx, pendingKey, host).Result()
	if err != nil {
		return nil, err
	}
	if added == 0 {
		return nil, apperr.New(apperr.ResourceExhausted, "invite already pending for this player")
	}
	l.store.client.Expire(ctx, pendingKey, TTLInvite)

	inv := &models.Invite{
		ID:        models.GenerateInviteID(),
		HostUID:   host,
		GuestUID:  guest,
		Status:    models.InviteStatusPending,
		CreatedAt: time.Now().UnixMilli(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := l.store.setJSON(ctx, fmt.Sprintf(KeyInvite, inv.ID), inv, TTLInvite); err != nil {
		l.store.client.SRem(ctx, pendingKey, host)
		return nil, err
	}

	l.notifier.NotifyUser(host, "invite_received", map[string]any{"invite_id": inv.ID, "guest_uid": guest})
	log.Printf("INVITE: %s invited %s (%s)", guest, host, inv.ID)
	return inv, nil
}

// RespondInvite is the host accepting or rejecting a pending invite.
// Accepting collects both stakes and builds a private game; if either
// side cannot pay, the invite is marked failed_funds and nothing is
// kept.
func (l *LobbyService) RespondInvite(ctx context.Context, inviteID, uid string, accept bool) (*models.Game, error) {
	target := models.InviteStatusRejected
	if accept {
		target = models.InviteStatusAccepted
	}

	inv, err := l.transitionInvite(ctx, inviteID, func(inv *models.Invite) error {
		if inv.HostUID != uid {
			return apperr.New(apperr.PermissionDenied, "only the invited player can respond")
		}
		if inv.Status != models.InviteStatusPending {
			return apperr.Newf(apperr.FailedPrecondition, "invite is already %s", inv.Status)
		}
		inv.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.clearPending(ctx, inv)

	if !accept {
		l.notifier.NotifyUser(inv.GuestUID, "invite_rejected", map[string]any{"invite_id": inv.ID})
		return nil, nil
	}

	stake := l.cfg.StakeFor(models.ModePrivate)
	g, err := l.buildPrivateGame(ctx, inv.HostUID, inv.GuestUID, stake)
	if err != nil {
		l.transitionInvite(ctx, inviteID, func(inv *models.Invite) error {
			inv.Status = models.InviteStatusFailedFunds
			return nil
		})
		return nil, apperr.Wrap(apperr.Aborted, "could not start the game", err)
	}

	l.transitionInvite(ctx, inviteID, func(inv *models.Invite) error {
		inv.GameID = g.ID
		inv.TableID = g.TableID
		return nil
	})
	l.notifier.NotifyUser(inv.GuestUID, "invite_accepted", map[string]any{"invite_id": inv.ID, "game_id": g.ID})
	return g, nil
}

// CancelInvite lets the guest withdraw a still-pending invite.
func (l *LobbyService) CancelInvite(ctx context.Context, inviteID, uid string) error {
	inv, err := l.transitionInvite(ctx, inviteID, func(inv *models.Invite) error {
		if inv.GuestUID != uid {
			return apperr.New(apperr.PermissionDenied, "only the sender can cancel")
		}
		if inv.Status != models.InviteStatusPending {
			return apperr.Newf(apperr.FailedPrecondition, "invite is already %s", inv.Status)
		}
		inv.Status = models.InviteStatusCancelled
		return nil
	})
	if err != nil {
		return err
	}
	l.clearPending(ctx, inv)
	l.notifier.NotifyUser(inv.HostUID, "invite_cancelled", map[string]any{"invite_id": inv.ID})
	return nil
}

// GetInvite fetches an invite either party may read.
func (l *LobbyService) GetInvite(ctx context.Context, inviteID, uid string) (*models.Invite, error) {
	var inv models.Invite
	found, err := l.store.getJSON(ctx, fmt.Sprintf(KeyInvite, inviteID), &inv)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.New(apperr.NotFound, "invite not found")
	}
	if inv.HostUID != uid && inv.GuestUID != uid {
		return nil, apperr.New(apperr.PermissionDenied, "not your invite")
	}
	return &inv, nil
}

// transitionInvite applies fn to the invite under a conditional
// transaction so concurrent responses cannot both win.
func (l *LobbyService) transitionInvite(ctx context.Context, inviteID string, fn func(inv *models.Invite) error) (*models.Invite, error) {
	key := fmt.Sprintf(KeyInvite, inviteID)
	var out *models.Invite

	err := l.store.watchUpdate(ctx, key, 5, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return apperr.New(apperr.NotFound, "invite not found")
		}
		if err != nil {
			return err
		}
		var inv models.Invite
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			return err
		}
		if err := fn(&inv); err != nil {
			return err
		}
		inv.UpdatedAt = time.Now().UnixMilli()
		raw, err := json.Marshal(&inv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, TTLInvite)
			return nil
		})
		if err == nil {
			out = &inv
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LobbyService) clearPending(ctx context.Context, inv *models.Invite) {
	key := fmt.Sprintf(KeyPendingInvites, inv.GuestUID)
	if err := l.store.client.SRem(ctx, key, inv.HostUID).Err(); err != nil {
		log.Printf("INVITE: failed to clear pending marker for %s: %v", inv.GuestUID, err)
	}
}
