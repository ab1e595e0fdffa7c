package events

import "time"

type Type string

const (
	// IdentityChanged fires on sign-in, sign-out, token refresh and store
	// selection. Consumers decide independently whether to re-sync.
	IdentityChanged Type = "identity.changed"
	// CouponError carries the user-facing message for a failed clip.
	CouponError Type = "coupon.error"
	// ClientWelcome is the first frame a connecting broadcast client
	// receives; it is never published on the bus.
	ClientWelcome Type = "client.welcome"
)

type Event struct {
	ID      string            `json:"id"`
	Type    Type              `json:"type"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	At      time.Time         `json:"at"`
}
