package domain

import "time"

// MessageReceipt records that an inbound provider message was accepted for
// processing. While it is unexpired, a provider retry carrying the same
// message id for the same tenant and provider is dropped.
type MessageReceipt struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"`
	TenantID   string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_receipt_message,priority:1"`
	Provider   string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_receipt_message,priority:2"`
	MessageID  string    `gorm:"type:varchar(256);not null;uniqueIndex:ux_receipt_message,priority:3"`
	ReceivedAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

func (MessageReceipt) TableName() string { return "message_receipts" }

// Expired reports whether the receipt no longer blocks retries at now.
func (r MessageReceipt) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }
