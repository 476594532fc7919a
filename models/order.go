package models

import "time"

// OrderStatus tracks an ingested order through the solver pipeline.
// Statuses live in the solver only; the chain sees transactions, not state.
type OrderStatus string

const (
	// OrderStatusReceived indicates the order was ingested but not yet quoted.
	OrderStatusReceived OrderStatus = "received"

	// OrderStatusFilling indicates the order passed the quote gate and is
	// being executed.
	OrderStatusFilling OrderStatus = "filling"

	// OrderStatusFilled indicates every step completed.
	OrderStatusFilled OrderStatus = "filled"

	// OrderStatusDropped indicates a revert policy ended the plan cleanly.
	OrderStatusDropped OrderStatus = "dropped"

	// OrderStatusRejected indicates preflight or quoting refused the order.
	OrderStatusRejected OrderStatus = "rejected"

	// OrderStatusFailed indicates the fill hit a fatal error.
	OrderStatusFailed OrderStatus = "failed"
)

// Order is the persistence record of one ingested order.
type Order struct {
	ID          string      `json:"id"`
	SourceChain uint64      `json:"source_chain"`
	Resolver    string      `json:"resolver"`
	Status      OrderStatus `json:"status"`
	PnlUsd      string      `json:"pnl_usd,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
