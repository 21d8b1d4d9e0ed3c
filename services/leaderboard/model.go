package leaderboard

import (
	"time"
)

// Change indicators reported against the most recent snapshot.
const (
	IndicatorNew     = "new"
	IndicatorUp      = "up"
	IndicatorDown    = "down"
	IndicatorNeutral = "neutral"
)

// SnapshotEntry is one ranked row of a materialized snapshot. All rows of a
// run share snapshot_time and are written in a single transaction.
type SnapshotEntry struct {
	ID           string    `gorm:"column:id;primaryKey"`
	SnapshotTime time.Time `gorm:"column:snapshot_time;index"`
	AccountID    string    `gorm:"column:account_id;index"`
	DisplayName  string    `gorm:"column:display_name"`
	Balance      int64     `gorm:"column:balance"`
	Rank         int       `gorm:"column:rank"`
}

// Entry is one row of a leaderboard read, live rank plus snapshot diff.
type Entry struct {
	AccountID        string `json:"account_id"`
	DisplayName      string `json:"display_name"`
	Balance          int64  `json:"balance"`
	Position         int    `json:"position"`
	PositionChange   int    `json:"position_change"`
	ChangeIndicator  string `json:"change_indicator"`
	PreviousPosition *int   `json:"previous_position"`
	PreviousPoints   *int64 `json:"previous_points"`
}

type Leaderboard struct {
	Entries          []*Entry   `json:"entries"`
	Total            int        `json:"total"`
	Limit            int        `json:"limit"`
	Offset           int        `json:"offset"`
	LastSnapshotTime *time.Time `json:"last_snapshot_time"`
	FocusAccount     *Entry     `json:"focus_account,omitempty"`
}

type SnapshotResult struct {
	SnapshotTime  time.Time `json:"snapshot_time"`
	AccountsCount int       `json:"accounts_count"`
}
