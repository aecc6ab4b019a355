package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateGameID() string {
	return fmt.Sprintf("game_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateTableID() string {
	return fmt.Sprintf("table_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateEntryID() string {
	return fmt.Sprintf("qe_%d", uuid.New().ID())
}

func GenerateTeamID() string {
	return fmt.Sprintf("team_%d", uuid.New().ID())
}

func GenerateInviteID() string {
	return fmt.Sprintf("inv_%d", uuid.New().ID())
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%s",
		time.Now().Format("20060102"),
		uuid.New().String()[:8])
}

// GenerateBotUID mints a unique synthetic seat filler, e.g. "bot_3_...".
func GenerateBotUID(seat int) string {
	return fmt.Sprintf("bot_%d_%d", seat, uuid.New().ID())
}

// IsBot reports whether uid is the shared bot placeholder or a
// synthesized bot seat. Bot seats never own wallets or status pointers.
func IsBot(uid string) bool {
	return uid == BotUID || strings.HasPrefix(uid, "bot_")
}

// ColorForSeat is the fixed seat -> token color mapping.
func ColorForSeat(seat int) string {
	switch seat {
	case 1:
		return "green"
	case 2:
		return "yellow"
	case 3:
		return "blue"
	default:
		return "red"
	}
}
