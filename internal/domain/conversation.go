package domain

import "time"

// Role is the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single history entry of a conversation.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LineItem is one priced line of a quote or order.
type LineItem struct {
	ItemID    string `json:"item_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Subtotal returns quantity times unit price.
func (l LineItem) Subtotal() int64 { return int64(l.Quantity) * l.UnitPrice }

// PendingOrder is a quote awaiting the customer's confirmation.
type PendingOrder struct {
	OrderID       string     `json:"order_id,omitempty"` // assigned at quote time; reused on confirm
	Total         int64      `json:"total"`
	ItemsSummary  string     `json:"items_summary"`
	LineItems     []LineItem `json:"line_items"`
	NotFoundItems []string   `json:"not_found_items,omitempty"`
	DeliveryFee   int64      `json:"delivery_fee,omitempty"`
}

// DeliveryEstimate is the Zone Estimator's result. It is only persisted
// inside conversation metadata.
type DeliveryEstimate struct {
	Zone       string `json:"zone"`
	Fee        int64  `json:"fee"`
	ETAMinutes int    `json:"eta_minutes"`
	Notes      string `json:"notes,omitempty"`
}

// Metadata is the per-conversation bag. Absent keys are nil/empty.
type Metadata struct {
	CustomerName     string            `json:"customer_name,omitempty"`
	LocationText     string            `json:"location_text,omitempty"`
	DeliveryEstimate *DeliveryEstimate `json:"delivery_estimate,omitempty"`
	PendingOrder     *PendingOrder     `json:"pending_order,omitempty"`
	LastQuery        string            `json:"last_query,omitempty"`
}

// MetadataPatch describes a shallow merge. Nil fields are left untouched;
// ClearPendingOrder removes the pending quote.
type MetadataPatch struct {
	CustomerName      *string
	LocationText      *string
	DeliveryEstimate  *DeliveryEstimate
	PendingOrder      *PendingOrder
	ClearPendingOrder bool
	LastQuery         *string
}

// Apply merges p into m (last write wins per key).
func (m *Metadata) Apply(p MetadataPatch) {
	if p.CustomerName != nil {
		m.CustomerName = *p.CustomerName
	}
	if p.LocationText != nil {
		m.LocationText = *p.LocationText
	}
	if p.DeliveryEstimate != nil {
		est := *p.DeliveryEstimate
		m.DeliveryEstimate = &est
	}
	if p.ClearPendingOrder {
		m.PendingOrder = nil
	}
	if p.PendingOrder != nil {
		m.PendingOrder = p.PendingOrder.Clone()
	}
	if p.LastQuery != nil {
		m.LastQuery = *p.LastQuery
	}
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.DeliveryEstimate != nil {
		est := *m.DeliveryEstimate
		out.DeliveryEstimate = &est
	}
	out.PendingOrder = m.PendingOrder.Clone()
	return out
}

// Clone returns a deep copy of the quote, or nil.
func (p *PendingOrder) Clone() *PendingOrder {
	if p == nil {
		return nil
	}
	out := *p
	out.LineItems = append([]LineItem(nil), p.LineItems...)
	out.NotFoundItems = append([]string(nil), p.NotFoundItems...)
	return &out
}

// TrimHistory keeps the most recent limit entries. limit <= 0 disables the cap.
func TrimHistory(h []Message, limit int) []Message {
	if limit <= 0 || len(h) <= limit {
		return h
	}
	out := make([]Message, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// StrPtr is a small helper for building patches.
func StrPtr(s string) *string { return &s }
