package domain

import (
	"strconv"
	"time"
)

// MessageType is the kind of an inbound message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageLocation MessageType = "location"
)

// Location is the payload of a location message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InboundMessage is a provider event normalized at the webhook boundary and
// handed to the processing queue.
type InboundMessage struct {
	TenantID    string      `json:"tenant_id"`
	Provider    Provider    `json:"provider"`
	ChannelID   string      `json:"channel_id"` // phone_number_id (Graph) or sender id (Gateway)
	From        string      `json:"from"`
	MessageID   string      `json:"message_id"`
	Type        MessageType `json:"type"`
	Text        string      `json:"text"`
	ContactName string      `json:"contact_name,omitempty"`
	Location    *Location   `json:"location,omitempty"`
	ReceivedAt  time.Time   `json:"received_at"`
}

// Coords renders the location as "coords:<lat>,<lng>".
func (l Location) Coords() string {
	return "coords:" + strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}
