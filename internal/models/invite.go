package models

type InviteStatus string

const (
	InviteStatusPending     InviteStatus = "pending"
	InviteStatusAccepted    InviteStatus = "accepted"
	InviteStatusRejected    InviteStatus = "rejected"
	InviteStatusCancelled   InviteStatus = "cancelled"
	InviteStatusFailedFunds InviteStatus = "failed_funds"
)

// Invite is a guest-initiated challenge for a private table. The guest
// sends it, the host accepts or rejects, the guest may cancel while
// still pending.
type Invite struct {
	ID        string       `json:"id" redis:"id"`
	HostUID   string       `json:"host_uid" redis:"host_uid"`
	GuestUID  string       `json:"guest_uid" redis:"guest_uid"`
	Status    InviteStatus `json:"status" redis:"status"`
	GameID    string       `json:"game_id,omitempty" redis:"game_id"`
	TableID   string       `json:"table_id,omitempty" redis:"table_id"`
	CreatedAt int64        `json:"created_at" redis:"created_at"`
	UpdatedAt int64        `json:"updated_at" redis:"updated_at"`
}

// Profile is the slice of the external user record this core reads:
// display fields plus lifetime winnings for level derivation.
type Profile struct {
	UID              string `json:"uid" redis:"uid"`
	DisplayName      string `json:"display_name" redis:"display_name"`
	Avatar           string `json:"avatar,omitempty" redis:"avatar"`
	LifetimeEarnings int64  `json:"lifetime_earnings" redis:"lifetime_earnings"`
}
