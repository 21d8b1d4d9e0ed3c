package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"streampoints-engine/pkg/config"
	"streampoints-engine/services/points"
	"streampoints-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &points.Account{}, &SnapshotEntry{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var cfg config.Config
	cfg.Leaderboard.SnapshotLockTTL = time.Minute

	return NewService(ServiceParams{DB: db, Node: node, Config: &cfg}), db
}

func seedAccount(t *testing.T, db *gorm.DB, id string, balance int64, createdAt time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&points.Account{
		ID:             id,
		ExternalUserID: "ext-" + id,
		DisplayName:    "user-" + id,
		Balance:        balance,
		MaxBalance:     balance,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}).Error)
}

func setBalance(t *testing.T, db *gorm.DB, id string, balance int64) {
	t.Helper()
	require.NoError(t, db.Model(&points.Account{}).Where("id = ?", id).Update("balance", balance).Error)
}

func TestLeaderboardFirstRunAllNew(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seedAccount(t, db, "a", 100, base)
	seedAccount(t, db, "b", 50, base.Add(time.Minute))

	board, err := svc.GetLeaderboard(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Nil(t, board.LastSnapshotTime)
	require.Equal(t, 2, board.Total)
	require.Len(t, board.Entries, 2)

	for _, entry := range board.Entries {
		require.Equal(t, IndicatorNew, entry.ChangeIndicator)
		require.Nil(t, entry.PreviousPosition)
		require.Nil(t, entry.PreviousPoints)
	}
	require.Equal(t, "a", board.Entries[0].AccountID)
	require.Equal(t, 1, board.Entries[0].Position)
	require.Equal(t, "b", board.Entries[1].AccountID)
	require.Equal(t, 2, board.Entries[1].Position)
}

func TestLeaderboardDiffAgainstSnapshot(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seedAccount(t, db, "a", 100, base)
	seedAccount(t, db, "b", 50, base.Add(time.Minute))
	seedAccount(t, db, "c", 25, base.Add(2*time.Minute))

	result, err := svc.CreateSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.AccountsCount)

	// b overtakes a; c keeps rank 3; d is unseen by the snapshot.
	setBalance(t, db, "a", 60)
	setBalance(t, db, "b", 90)
	seedAccount(t, db, "d", 10, time.Now())

	board, err := svc.GetLeaderboard(ctx, 10, 0, "")
	require.NoError(t, err)
	require.NotNil(t, board.LastSnapshotTime)
	require.Equal(t, 4, board.Total)
	require.Len(t, board.Entries, 4)

	b := board.Entries[0]
	require.Equal(t, "b", b.AccountID)
	require.Equal(t, IndicatorUp, b.ChangeIndicator)
	require.Equal(t, 1, b.PositionChange)
	require.Equal(t, 2, *b.PreviousPosition)
	require.Equal(t, int64(50), *b.PreviousPoints)

	a := board.Entries[1]
	require.Equal(t, "a", a.AccountID)
	require.Equal(t, IndicatorDown, a.ChangeIndicator)
	require.Equal(t, 1, a.PositionChange)
	require.Equal(t, 1, *a.PreviousPosition)

	c := board.Entries[2]
	require.Equal(t, "c", c.AccountID)
	require.Equal(t, IndicatorNeutral, c.ChangeIndicator)
	require.Equal(t, 0, c.PositionChange)

	d := board.Entries[3]
	require.Equal(t, "d", d.AccountID)
	require.Equal(t, IndicatorNew, d.ChangeIndicator)
}

func TestLeaderboardComparesOnlyLatestSnapshot(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seedAccount(t, db, "a", 100, base)
	seedAccount(t, db, "b", 50, base.Add(time.Minute))

	_, err := svc.CreateSnapshot(ctx)
	require.NoError(t, err)

	setBalance(t, db, "b", 200)
	time.Sleep(5 * time.Millisecond)
	second, err := svc.CreateSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, second.AccountsCount)

	// Standings match the second snapshot exactly, so nothing moved even
	// though the first snapshot had the opposite order.
	board, err := svc.GetLeaderboard(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Equal(t, second.SnapshotTime.Unix(), board.LastSnapshotTime.Unix())
	for _, entry := range board.Entries {
		require.Equal(t, IndicatorNeutral, entry.ChangeIndicator)
	}
}

func TestLeaderboardPagination(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		seedAccount(t, db, fmt.Sprintf("u%d", i), int64(100-i*10), base.Add(time.Duration(i)*time.Minute))
	}

	board, err := svc.GetLeaderboard(ctx, 2, 2, "")
	require.NoError(t, err)
	require.Equal(t, 5, board.Total)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "u2", board.Entries[0].AccountID)
	require.Equal(t, 3, board.Entries[0].Position)
	require.Equal(t, "u3", board.Entries[1].AccountID)
	require.Equal(t, 4, board.Entries[1].Position)
}

func TestLeaderboardFocusAccountOutsidePage(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		seedAccount(t, db, fmt.Sprintf("u%d", i), int64(100-i*10), base.Add(time.Duration(i)*time.Minute))
	}

	board, err := svc.GetLeaderboard(ctx, 2, 0, "u4")
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	require.NotNil(t, board.FocusAccount)
	require.Equal(t, "u4", board.FocusAccount.AccountID)
	require.Equal(t, 5, board.FocusAccount.Position)

	// The focus row is annotated, not injected into the page.
	for _, entry := range board.Entries {
		require.NotEqual(t, "u4", entry.AccountID)
	}
}

func TestLeaderboardExcludesZeroBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedAccount(t, db, "a", 100, time.Now())
	seedAccount(t, db, "zero", 0, time.Now())

	board, err := svc.GetLeaderboard(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, board.Total)
	require.Equal(t, "a", board.Entries[0].AccountID)
}

func TestLeaderboardTiebreakByCreation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seedAccount(t, db, "younger", 100, base.Add(time.Minute))
	seedAccount(t, db, "older", 100, base)

	board, err := svc.GetLeaderboard(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Equal(t, "older", board.Entries[0].AccountID)
	require.Equal(t, "younger", board.Entries[1].AccountID)
}

func TestCreateSnapshotEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.CreateSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.AccountsCount)
}
