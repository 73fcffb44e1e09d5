package domain

// PositionOpenEvent is published by the ingestor when a wallet opens a new
// directional position. Delivered at-least-once; consumers rely on the
// idempotency key to recognize redelivery.
type PositionOpenEvent struct {
	Wallet         string    `json:"wallet"`
	Instrument     string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	EntryPrice     float64   `json:"entry_price"`
	EntryTime      int64     `json:"entry_time"`
	Size           float64   `json:"size"`
	Leverage       int       `json:"leverage"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Notification event types
const (
	NotifySignalCreated = "SIGNAL_CREATED"
	NotifyTargetHit     = "TARGET_HIT"
	NotifyTPHit         = "TP_HIT"
	NotifySLHit         = "SL_HIT"
	NotifyClosedManual  = "CLOSED_MANUAL"
)

// NotificationEvent describes a signal lifecycle event for delivery through
// the notification channel. Best-effort: a failed send is retried by the
// queue layer and never blocks signal-state progression.
type NotificationEvent struct {
	Type             string    `json:"type"`
	SignalID         string    `json:"signal_id"`
	Instrument       string    `json:"instrument"`
	Direction        Direction `json:"direction"`
	Price            float64   `json:"price"`
	ReferencePrice   float64   `json:"reference_price"`
	StopLossPrice    float64   `json:"stop_loss_price,omitempty"`
	TargetPrices     []float64 `json:"target_prices,omitempty"`
	TargetIndex      int       `json:"target_index,omitempty"`
	ParticipantCount int       `json:"participant_count,omitempty"`
	PnL              float64   `json:"pnl,omitempty"`
	Outcome          Outcome   `json:"outcome,omitempty"`
	Timestamp        int64     `json:"timestamp"`
}
