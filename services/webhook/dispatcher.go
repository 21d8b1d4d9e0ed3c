package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"streampoints-engine/pkg/config"
	"streampoints-engine/services/points"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Dispatcher routes a verified, non-duplicate event to its domain handler.
// The delivery id travels with every ledger write so a balance change can be
// traced back to the exact webhook that caused it.
type Dispatcher struct {
	points *points.Service
	awards config.Config
}

type DispatcherParams struct {
	fx.In
	Points *points.Service
	Config *config.Config
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		points: p.Points,
		awards: *p.Config,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event *InboundEvent) error {
	switch event.EventType {
	case EventChatMessage:
		return d.handleChatMessage(ctx, event)
	case EventChannelFollowed:
		return d.handleFollow(ctx, event)
	case EventSubscriptionNew:
		return d.handleSubscription(ctx, event, d.awards.Awards.SubscriptionBonus, "New subscription")
	case EventSubscriptionRenewal:
		return d.handleSubscription(ctx, event, d.awards.Awards.RenewalBonus, "Subscription renewal")
	case EventSubscriptionGifts:
		return d.handleGiftSubs(ctx, event)
	case EventKicksGifted:
		return d.handleKicksGifted(ctx, event)
	case EventRewardRedeemed:
		return d.handleRewardRedeemed(ctx, event)
	case EventStreamStatusChanged:
		return d.handleStreamStatus(ctx, event)
	default:
		// Forward compatibility: acknowledge and drop.
		zap.L().Info("ignoring unknown event type",
			zap.String("event_type", event.EventType),
			zap.String("delivery_id", event.DeliveryID),
		)
		return nil
	}
}

func (d *Dispatcher) handleChatMessage(ctx context.Context, event *InboundEvent) error {
	var payload ChatMessagePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid chat message payload: %w", err)
	}

	if d.awards.Awards.RequireLive {
		live, err := d.points.IsStreamLive(ctx)
		if err != nil {
			return err
		}
		if !live {
			return nil
		}
	}

	result, err := d.points.AwardIfEligible(ctx,
		points.Subject{ExternalUserID: payload.Sender.UserID, DisplayName: payload.Sender.name()},
		d.awards.Awards.ChatMessagePoints,
		"Chat message reward",
		event.DeliveryID,
		d.awards.Awards.ChatCooldown,
	)
	if err != nil {
		return err
	}

	if !result.Awarded {
		zap.L().Debug("chat award skipped, cooldown active",
			zap.String("subject_id", payload.Sender.UserID),
			zap.Duration("remaining", result.RemainingCooldown),
		)
	}
	return nil
}

func (d *Dispatcher) handleFollow(ctx context.Context, event *InboundEvent) error {
	var payload FollowPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid follow payload: %w", err)
	}

	granted, err := d.points.GrantFollowBonus(ctx,
		points.Subject{ExternalUserID: payload.Follower.UserID, DisplayName: payload.Follower.name()},
		d.awards.Awards.FollowBonus,
		"Follow bonus",
		event.DeliveryID,
	)
	if err != nil {
		return err
	}

	if !granted {
		zap.L().Debug("follow bonus already granted", zap.String("subject_id", payload.Follower.UserID))
	}
	return nil
}

func (d *Dispatcher) handleSubscription(ctx context.Context, event *InboundEvent, amount int64, reason string) error {
	var payload SubscriptionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	return d.points.Credit(ctx,
		points.Subject{ExternalUserID: payload.Subscriber.UserID, DisplayName: payload.Subscriber.name()},
		amount,
		reason,
		event.DeliveryID,
	)
}

func (d *Dispatcher) handleGiftSubs(ctx context.Context, event *InboundEvent) error {
	var payload GiftSubsPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid gift subs payload: %w", err)
	}
	if len(payload.Giftees) == 0 {
		return nil
	}

	amount := d.awards.Awards.GiftedSubBonus * int64(len(payload.Giftees))
	reason := fmt.Sprintf("Gifted %d subscription(s)", len(payload.Giftees))

	return d.points.Credit(ctx,
		points.Subject{ExternalUserID: payload.Gifter.UserID, DisplayName: payload.Gifter.name()},
		amount,
		reason,
		event.DeliveryID,
	)
}

func (d *Dispatcher) handleKicksGifted(ctx context.Context, event *InboundEvent) error {
	var payload KicksGiftedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid kicks payload: %w", err)
	}
	if payload.Amount <= 0 {
		return nil
	}

	amount := payload.Amount * d.awards.Awards.KicksPointRate
	reason := fmt.Sprintf("Gifted %d kicks", payload.Amount)

	return d.points.Credit(ctx,
		points.Subject{ExternalUserID: payload.Sender.UserID, DisplayName: payload.Sender.name()},
		amount,
		reason,
		event.DeliveryID,
	)
}

func (d *Dispatcher) handleRewardRedeemed(ctx context.Context, event *InboundEvent) error {
	var payload RewardRedeemedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid reward payload: %w", err)
	}

	reason := fmt.Sprintf("Redeemed reward: %s", payload.RewardTitle)

	return d.points.Spend(ctx,
		points.Subject{ExternalUserID: payload.Redeemer.UserID, DisplayName: payload.Redeemer.name()},
		payload.Cost,
		reason,
		event.DeliveryID,
	)
}

func (d *Dispatcher) handleStreamStatus(ctx context.Context, event *InboundEvent) error {
	var payload StreamStatusPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid stream status payload: %w", err)
	}

	return d.points.SetStreamLive(ctx, payload.IsLive)
}
