package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

// recordingNotifier captures pushes so tests can assert on delivery.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []recordedPush
}

type recordedPush struct {
	UID     string
	Kind    string
	Payload map[string]any
}

func (r *recordingNotifier) NotifyUser(uid, kind string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, recordedPush{UID: uid, Kind: kind, Payload: payload})
}

func (r *recordingNotifier) PostActivity([]string, string, map[string]any) {}

func (r *recordingNotifier) sentTo(uid, kind string) []recordedPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedPush
	for _, p := range r.sent {
		if p.UID == uid && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func newLobbyTestDeps(t *testing.T) (*testDeps, *services.LobbyService, *recordingNotifier) {
	t.Helper()
	d := newTestDeps(t)
	rec := &recordingNotifier{}
	lobby := services.NewLobbyService(d.store, d.ledger, d.builder, d.turns, d.cfg, rec)
	return d, lobby, rec
}

// Joining a host with no open table is not an error: the host gets a
// poke and the guest learns whether the host is idle or mid-game.
func TestJoinTablePokesHostWithoutTable(t *testing.T) {
	d, lobby, rec := newLobbyTestDeps(t)
	ctx := context.Background()

	host := testUID("test_pokehost")
	guest := testUID("test_pokeguest")
	if _, err := d.ledger.CreateWallet(ctx, guest, 1000, 10); err != nil {
		t.Fatalf("Failed to seed wallet: %v", err)
	}

	g, result, err := lobby.JoinTable(ctx, host, guest)
	if err != nil {
		t.Fatalf("JoinTable should not fail on a missing table: %v", err)
	}
	if g != nil {
		t.Error("No game should have been created")
	}
	if result != services.JoinPokedIdle {
		t.Errorf("Expected %s, got %s", services.JoinPokedIdle, result)
	}
	pokes := rec.sentTo(host, "table_join_attempt")
	if len(pokes) != 1 {
		t.Fatalf("Host should get exactly one poke, got %d", len(pokes))
	}
	if pokes[0].Payload["guest_uid"] != guest {
		t.Errorf("Poke should carry the guest uid, got %v", pokes[0].Payload)
	}

	// Same guest, host now mid-game: the poke says busy.
	now := time.Now().UnixMilli()
	err = d.store.SetGameStatus(ctx, host, &models.GameStatus{Status: "playing", GameID: "game_busy", UpdatedAt: now})
	if err != nil {
		t.Fatalf("Failed to stage game status: %v", err)
	}
	_, result, err = lobby.JoinTable(ctx, host, guest)
	if err != nil {
		t.Fatalf("JoinTable should not fail on a busy host: %v", err)
	}
	if result != services.JoinPokedBusy {
		t.Errorf("Expected %s, got %s", services.JoinPokedBusy, result)
	}
	if len(rec.sentTo(host, "table_join_attempt")) != 2 {
		t.Error("Busy host should have been poked as well")
	}
}

// The happy path still matches: an open table is claimed, both stakes
// are debited and a private game comes back.
func TestJoinTableMatchesOpenTable(t *testing.T) {
	d, lobby, _ := newLobbyTestDeps(t)
	ctx := context.Background()

	host := testUID("test_tablehost")
	guest := testUID("test_tableguest")
	for _, uid := range []string{host, guest} {
		if _, err := d.ledger.CreateWallet(ctx, uid, 1000, 10); err != nil {
			t.Fatalf("Failed to seed wallet: %v", err)
		}
	}

	if _, err := lobby.OpenTable(ctx, host); err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}

	g, result, err := lobby.JoinTable(ctx, host, guest)
	if err != nil {
		t.Fatalf("JoinTable failed: %v", err)
	}
	if result != services.JoinMatched {
		t.Errorf("Expected %s, got %s", services.JoinMatched, result)
	}
	if g == nil || !g.HasPlayer(host) || !g.HasPlayer(guest) {
		t.Fatalf("Game should seat host and guest: %+v", g)
	}

	for _, uid := range []string{host, guest} {
		w, err := d.ledger.GetWallet(ctx, uid)
		if err != nil {
			t.Fatalf("Failed to read wallet: %v", err)
		}
		if w.Gold != 900 {
			t.Errorf("%s should hold 1000 - 100 stake = 900 gold, got %d", uid, w.Gold)
		}
	}
}
