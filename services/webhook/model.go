package webhook

import (
	"time"

	"gorm.io/datatypes"
)

// Event types accepted by the dispatcher. Anything else is acknowledged and
// dropped so a new upstream event type never breaks ingestion.
const (
	EventChatMessage         = "chat.message.sent"
	EventChannelFollowed     = "channel.followed"
	EventSubscriptionNew     = "channel.subscription.new"
	EventSubscriptionRenewal = "channel.subscription.renewal"
	EventSubscriptionGifts   = "channel.subscription.gifts"
	EventKicksGifted         = "kicks.gifted"
	EventRewardRedeemed      = "reward.redeemed"
	EventStreamStatusChanged = "livestream.status.updated"
)

// InboundEvent is the idempotency record for one delivery. The row is created
// before any business logic runs and flipped to processed only after the
// handler completes; a processed=false row is an operator-visible stuck state.
type InboundEvent struct {
	DeliveryID   string         `gorm:"column:delivery_id;primaryKey"`
	EventType    string         `gorm:"column:event_type;index"`
	EventVersion string         `gorm:"column:event_version"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	ReceivedAt   time.Time      `gorm:"column:received_at"`
	Processed    bool           `gorm:"column:processed;index"`
	ProcessedAt  *time.Time     `gorm:"column:processed_at"`
}

type EventUser struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (u EventUser) name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type ChatMessagePayload struct {
	MessageID string    `json:"message_id"`
	Sender    EventUser `json:"sender"`
	Content   string    `json:"content"`
}

type FollowPayload struct {
	Follower EventUser `json:"follower"`
}

type SubscriptionPayload struct {
	Subscriber EventUser `json:"subscriber"`
	Months     int       `json:"months"`
}

type GiftSubsPayload struct {
	Gifter  EventUser   `json:"gifter"`
	Giftees []EventUser `json:"giftees"`
}

type KicksGiftedPayload struct {
	Sender EventUser `json:"sender"`
	Amount int64     `json:"amount"`
}

type RewardRedeemedPayload struct {
	Redeemer    EventUser `json:"redeemer"`
	RewardTitle string    `json:"reward_title"`
	Cost        int64     `json:"cost"`
}

type StreamStatusPayload struct {
	IsLive bool `json:"is_live"`
}
