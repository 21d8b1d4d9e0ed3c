package webhook

import (
	"io"
	"net/http"

	"streampoints-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	HeaderDeliveryID   = "Delivery-Id"
	HeaderSignature    = "Signature"
	HeaderTimestamp    = "Timestamp"
	HeaderEventType    = "Event-Type"
	HeaderEventVersion = "Event-Version"
)

type Handler struct {
	verifier   *Verifier
	store      *Store
	dispatcher *Dispatcher
}

type HandlerParams struct {
	fx.In
	Verifier   *Verifier
	Store      *Store
	Dispatcher *Dispatcher
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		verifier:   p.Verifier,
		store:      p.Store,
		dispatcher: p.Dispatcher,
	}
}

// Ingest is the webhook entrypoint. Order matters: signature verification
// happens before the idempotency insert, so a forged delivery never shadows a
// legitimately-signed retry with a stored row.
func (h *Handler) Ingest(c *gin.Context) {
	deliveryID := c.GetHeader(HeaderDeliveryID)
	signature := c.GetHeader(HeaderSignature)
	timestamp := c.GetHeader(HeaderTimestamp)
	eventType := c.GetHeader(HeaderEventType)
	eventVersion := c.GetHeader(HeaderEventVersion)

	if deliveryID == "" || signature == "" || timestamp == "" || eventType == "" || eventVersion == "" {
		c.Error(errutil.BadRequest("missing required webhook headers", nil))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(errutil.BadRequest("failed to read request body", err))
		return
	}

	if !h.verifier.Verify(deliveryID, timestamp, body, signature) {
		c.Error(errutil.Unauthorized("invalid webhook signature", nil))
		return
	}

	ctx := c.Request.Context()

	isNew, err := h.store.TryBeginProcessing(ctx, deliveryID, eventType, eventVersion, body)
	if err != nil {
		c.Error(err)
		return
	}
	if !isNew {
		// Idempotent ack: the sender must not retry a delivery we have seen.
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	event, err := h.store.Get(ctx, deliveryID)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, event); err != nil {
		// The row stays processed=false and shows up on the stuck list.
		zap.L().Error("webhook handler failed",
			zap.String("delivery_id", deliveryID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		c.Error(err)
		return
	}

	if err := h.store.MarkProcessed(ctx, deliveryID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// Stuck lists accepted-but-unprocessed deliveries for operators.
func (h *Handler) Stuck(c *gin.Context) {
	events, err := h.store.FindStuck(c.Request.Context(), 100)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
