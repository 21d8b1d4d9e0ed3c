package leaderboard

import (
	"context"
	"errors"
	"time"

	"streampoints-engine/pkg/config"
	"streampoints-engine/pkg/errutil"
	"streampoints-engine/pkg/rediskey"
	"streampoints-engine/pkg/repository"
	"streampoints-engine/services/points"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	redis   *redis.Client
	lockTTL time.Duration

	snapshots repository.Repository[SnapshotEntry]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		redis:   p.Redis,
		lockTTL: p.Config.Leaderboard.SnapshotLockTTL,

		snapshots: repository.ProvideStore[SnapshotEntry](p.DB),
	}
}

// CreateSnapshot materializes the current standings as the new comparison
// baseline. The run guard keeps overlapping runs out across instances; the
// insert itself is one transaction so readers never see a partial rank set.
func (s *Service) CreateSnapshot(ctx context.Context) (*SnapshotResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if s.redis != nil {
		key := rediskey.BuildSnapshotLockKey("global")
		ok, err := s.redis.SetNX(ctx, key, time.Now().UnixMilli(), s.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errutil.Conflict("snapshot already in progress", nil)
		}
		defer s.redis.Del(context.WithoutCancel(ctx), key)
	}

	accounts, err := s.liveRanking(ctx)
	if err != nil {
		return nil, err
	}

	snapshotTime := time.Now().UTC()

	entries := make([]*SnapshotEntry, 0, len(accounts))
	for i, account := range accounts {
		entries = append(entries, &SnapshotEntry{
			ID:           s.node.Generate().String(),
			SnapshotTime: snapshotTime,
			AccountID:    account.ID,
			DisplayName:  account.DisplayName,
			Balance:      account.Balance,
			Rank:         i + 1,
		})
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.snapshots.WithTrx(tx).BatchCreate(ctx, entries)
	}); err != nil {
		zap.L().Error("failed to write leaderboard snapshot", zap.Error(err))
		return nil, err
	}

	zap.L().Info("leaderboard snapshot created",
		zap.Time("snapshot_time", snapshotTime),
		zap.Int("accounts_count", len(entries)),
	)

	return &SnapshotResult{
		SnapshotTime:  snapshotTime,
		AccountsCount: len(entries),
	}, nil
}

// GetLeaderboard computes the live ranking and annotates each row with its
// movement since the most recent snapshot. Read-only; a failure here has no
// state consequence.
func (s *Service) GetLeaderboard(ctx context.Context, limit, offset int, focusAccountID string) (*Leaderboard, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.liveRanking(ctx)
	if err != nil {
		return nil, err
	}

	previous, lastSnapshotTime, err := s.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{
		Entries:          make([]*Entry, 0, limit),
		Total:            len(accounts),
		Limit:            limit,
		Offset:           offset,
		LastSnapshotTime: lastSnapshotTime,
	}

	for i, account := range accounts {
		position := i + 1
		inPage := i >= offset && i < offset+limit
		isFocus := focusAccountID != "" && account.ID == focusAccountID

		if !inPage && !isFocus {
			continue
		}

		entry := buildEntry(account, position, previous)
		if inPage {
			board.Entries = append(board.Entries, entry)
		}
		if isFocus {
			board.FocusAccount = entry
		}
	}

	return board, nil
}

func buildEntry(account *points.Account, position int, previous map[string]*SnapshotEntry) *Entry {
	entry := &Entry{
		AccountID:       account.ID,
		DisplayName:     account.DisplayName,
		Balance:         account.Balance,
		Position:        position,
		ChangeIndicator: IndicatorNew,
	}

	prev, ok := previous[account.ID]
	if !ok {
		return entry
	}

	delta := prev.Rank - position
	switch {
	case delta > 0:
		entry.ChangeIndicator = IndicatorUp
		entry.PositionChange = delta
	case delta < 0:
		entry.ChangeIndicator = IndicatorDown
		entry.PositionChange = -delta
	default:
		entry.ChangeIndicator = IndicatorNeutral
	}

	prevRank := prev.Rank
	prevPoints := prev.Balance
	entry.PreviousPosition = &prevRank
	entry.PreviousPoints = &prevPoints

	return entry
}

// liveRanking orders accounts with a positive balance by (balance DESC,
// created_at ASC). The creation-time tiebreak keeps equal balances
// deterministic.
func (s *Service) liveRanking(ctx context.Context) ([]*points.Account, error) {
	var accounts []*points.Account
	if err := s.db.WithContext(ctx).
		Where("balance > 0").
		Order("balance DESC, created_at ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// latestSnapshot loads the single most recent snapshot as a lookup by
// account id. No snapshot yet means every live entry reads as new.
func (s *Service) latestSnapshot(ctx context.Context) (map[string]*SnapshotEntry, *time.Time, error) {
	var newest SnapshotEntry
	err := s.db.WithContext(ctx).
		Order("snapshot_time DESC").
		First(&newest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]*SnapshotEntry{}, nil, nil
		}
		return nil, nil, err
	}

	var entries []*SnapshotEntry
	if err := s.db.WithContext(ctx).
		Where("snapshot_time = ?", newest.SnapshotTime).
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	lookup := make(map[string]*SnapshotEntry, len(entries))
	for _, entry := range entries {
		lookup[entry.AccountID] = entry
	}

	snapshotTime := newest.SnapshotTime
	return lookup, &snapshotTime, nil
}
