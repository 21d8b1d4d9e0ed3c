package points

import (
	"context"
	"errors"
	"time"

	"streampoints-engine/pkg/config"
	"streampoints-engine/pkg/errutil"
	"streampoints-engine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	lockWait time.Duration

	accounts     repository.Repository[Account]
	entries      repository.Repository[LedgerEntry]
	reservations repository.Repository[CooldownReservation]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		lockWait: p.Config.Awards.LockWait,

		accounts:     repository.ProvideStore[Account](p.DB),
		entries:      repository.ProvideStore[LedgerEntry](p.DB),
		reservations: repository.ProvideStore[CooldownReservation](p.DB),
	}
}

// AwardIfEligible grants a cooldown-gated award. The eligibility check and
// every write happen while the reservation row lock for the subject is held,
// so two racing calls for the same subject cannot both observe an expired
// cooldown. Unrelated subjects lock different rows and never contend.
func (s *Service) AwardIfEligible(ctx context.Context, subject Subject, amount int64, reason, sourceEventID string, cooldown time.Duration) (*AwardResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("subject_id", subject.ExternalUserID),
		zap.Int64("amount", amount),
	)

	if amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0", nil)
	}

	if s.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	result := &AwardResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Race-free get-or-create: the insert is a no-op when the row exists,
		// the re-read below blocks on the row lock either way.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoNothing: true,
		}).Create(&CooldownReservation{
			SubjectID:   subject.ExternalUserID,
			DisplayName: subject.DisplayName,
		}).Error; err != nil {
			return err
		}

		var reservation CooldownReservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_id = ?", subject.ExternalUserID).
			First(&reservation).Error; err != nil {
			return err
		}

		now := time.Now()
		if reservation.ExpiresAt.After(now) {
			result.Awarded = false
			result.RemainingCooldown = reservation.ExpiresAt.Sub(now)
			return nil
		}

		if err := tx.Model(&CooldownReservation{}).
			Where("subject_id = ?", subject.ExternalUserID).
			Updates(map[string]any{
				"display_name": subject.DisplayName,
				"reserved_at":  now,
				"expires_at":   now.Add(cooldown),
			}).Error; err != nil {
			return err
		}

		account, err := s.lockAccount(ctx, tx, subject)
		if err != nil {
			return err
		}

		if err := s.apply(ctx, tx, account, amount, KindEarned, reason, sourceEventID); err != nil {
			return err
		}

		result.Awarded = true
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			zapLog.Warn("award lock wait exceeded")
			return nil, errutil.Timeout("award lock wait exceeded", err)
		}
		zapLog.Error("failed to process award", zap.Error(err))
		return nil, err
	}

	return result, nil
}

// Credit appends an earn entry without a cooldown check. Used by one-shot
// events (subscriptions, gifts).
func (s *Service) Credit(ctx context.Context, subject Subject, amount int64, reason, sourceEventID string) error {
	if amount <= 0 {
		return errutil.BadRequest("amount must be > 0", nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.lockAccount(ctx, tx, subject)
		if err != nil {
			return err
		}
		return s.apply(ctx, tx, account, amount, KindEarned, reason, sourceEventID)
	})
}

// GrantFollowBonus awards the one-time follow bonus. The granted flag on the
// account is checked and set under the account row lock, so a redelivered or
// racing follow event cannot double-grant.
func (s *Service) GrantFollowBonus(ctx context.Context, subject Subject, amount int64, reason, sourceEventID string) (bool, error) {
	granted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.lockAccount(ctx, tx, subject)
		if err != nil {
			return err
		}

		if account.FollowBonusAt != nil {
			return nil
		}

		now := time.Now()
		if err := tx.Model(&Account{}).
			Where("id = ?", account.ID).
			Update("follow_bonus_at", now).Error; err != nil {
			return err
		}

		if err := s.apply(ctx, tx, account, amount, KindEarned, reason, sourceEventID); err != nil {
			return err
		}

		granted = true
		return nil
	})

	return granted, err
}

// Spend debits points. The balance may decrease; max_balance never does.
func (s *Service) Spend(ctx context.Context, subject Subject, amount int64, reason, sourceEventID string) error {
	if amount <= 0 {
		return errutil.BadRequest("amount must be > 0", nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.lockAccount(ctx, tx, subject)
		if err != nil {
			return err
		}

		if account.Balance < amount {
			return errutil.BadRequest("insufficient points", nil)
		}

		return s.apply(ctx, tx, account, -amount, KindSpent, reason, sourceEventID)
	})
}

// lockAccount resolves the account row for a subject under an exclusive lock,
// creating it first when absent. Must run inside a transaction.
func (s *Service) lockAccount(ctx context.Context, tx *gorm.DB, subject Subject) (*Account, error) {
	now := time.Now()
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&Account{
		ID:             s.node.Generate().String(),
		ExternalUserID: subject.ExternalUserID,
		DisplayName:    subject.DisplayName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error; err != nil {
		return nil, err
	}

	var account Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_user_id = ?", subject.ExternalUserID).
		First(&account).Error; err != nil {
		return nil, err
	}

	return &account, nil
}

// apply appends the ledger entry and updates the cached projection in the
// same transaction. Callers must hold the account row lock.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, account *Account, delta int64, kind, reason, sourceEventID string) error {
	now := time.Now()

	entry := &LedgerEntry{
		ID:            s.node.Generate().String(),
		AccountID:     account.ID,
		Delta:         delta,
		Kind:          kind,
		Reason:        reason,
		SourceEventID: sourceEventID,
		CreatedAt:     now,
	}
	if err := s.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return err
	}

	newBalance := account.Balance + delta
	updates := map[string]any{
		"balance":    newBalance,
		"updated_at": now,
	}
	if newBalance > account.MaxBalance {
		updates["max_balance"] = newBalance
	}

	if err := s.accounts.WithTrx(tx).Update(ctx, account.ID, updates); err != nil {
		return err
	}

	account.Balance = newBalance
	if newBalance > account.MaxBalance {
		account.MaxBalance = newBalance
	}

	return nil
}

// VerifyBalance recomputes the entry sum for an account and compares it to
// the cached balance. A mismatch is reported, never silently repaired.
func (s *Service) VerifyBalance(ctx context.Context, accountID string) error {
	account, err := s.accounts.FindOne(ctx, &Account{ID: accountID})
	if err != nil {
		return err
	}
	if account == nil {
		return errutil.NotFound("account not found", nil)
	}

	var sum int64
	if err := s.db.WithContext(ctx).Model(&LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error; err != nil {
		return err
	}

	if sum != account.Balance {
		zap.L().Error("ledger invariant violation",
			zap.String("account_id", accountID),
			zap.Int64("balance", account.Balance),
			zap.Int64("entry_sum", sum),
		)
		return errutil.Internal("balance does not equal sum of ledger entries", nil)
	}

	return nil
}

// GetAccount looks an account up by its platform user id.
func (s *Service) GetAccount(ctx context.Context, externalUserID string) (*Account, error) {
	return s.accounts.FindOne(ctx, &Account{ExternalUserID: externalUserID})
}

// SetStreamLive records the process-wide online flag. The stream-status
// webhook handler is the single writer.
func (s *Service) SetStreamLive(ctx context.Context, live bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&StreamStatus{ID: streamStatusRowID, UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}

		return tx.Model(&StreamStatus{}).
			Where("id = ?", streamStatusRowID).
			Updates(map[string]any{
				"live":       live,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			}).Error
	})
}

// IsStreamLive reads the shared flag; absent row means offline.
func (s *Service) IsStreamLive(ctx context.Context) (bool, error) {
	var status StreamStatus
	err := s.db.WithContext(ctx).Where("id = ?", streamStatusRowID).First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return status.Live, nil
}
