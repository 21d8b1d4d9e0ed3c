package points

import (
	"time"
)

// Entry kinds. The ledger is append-only; the balance on Account is a cached
// projection that must always equal the sum of entry deltas.
const (
	KindEarned     = "EARNED"
	KindSpent      = "SPENT"
	KindAdjustment = "ADJUSTMENT"
)

// Subject identifies the platform user an award applies to.
type Subject struct {
	ExternalUserID string
	DisplayName    string
}

type Account struct {
	ID             string     `gorm:"column:id;primaryKey"`
	ExternalUserID string     `gorm:"column:external_user_id;uniqueIndex"`
	DisplayName    string     `gorm:"column:display_name"`
	Balance        int64      `gorm:"column:balance"`
	MaxBalance     int64      `gorm:"column:max_balance"`
	FollowBonusAt  *time.Time `gorm:"column:follow_bonus_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

// CooldownReservation holds at most one row per subject. A row whose
// expires_at lies in the future means the subject is cooling down and new
// rate-limited awards must be refused.
type CooldownReservation struct {
	SubjectID   string    `gorm:"column:subject_id;primaryKey"`
	DisplayName string    `gorm:"column:display_name"`
	ReservedAt  time.Time `gorm:"column:reserved_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

// LedgerEntry is immutable once written.
type LedgerEntry struct {
	ID            string    `gorm:"column:id;primaryKey"`
	AccountID     string    `gorm:"column:account_id;index"`
	Delta         int64     `gorm:"column:delta"`
	Kind          string    `gorm:"column:kind"`
	Reason        string    `gorm:"column:reason"`
	SourceEventID string    `gorm:"column:source_event_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// StreamStatus is a single versioned row (id = 1). The stream-status webhook
// handler is the only writer; award handlers read it to gate chat points.
type StreamStatus struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Live      bool      `gorm:"column:live"`
	Version   int64     `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

const streamStatusRowID = 1

// AwardResult reports the outcome of a cooldown-gated award attempt.
type AwardResult struct {
	Awarded           bool          `json:"awarded"`
	RemainingCooldown time.Duration `json:"remaining_cooldown"`
}
