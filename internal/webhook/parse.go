// Package webhook turns raw provider callbacks into normalized inbound
// messages. Payloads are parsed once into a tagged Envelope (Graph or
// Gateway); nothing downstream inspects raw JSON again.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

var (
	// ErrUnknownFormat is returned for bodies matching neither wire shape.
	ErrUnknownFormat = errors.New("webhook: unknown payload format")
	// ErrBadSignature is returned when X-Hub-Signature-256 does not match.
	ErrBadSignature = errors.New("webhook: signature mismatch")
)

// Format tags an Envelope.
type Format int

const (
	FormatGraph Format = iota + 1
	FormatGateway
)

func (f Format) String() string {
	switch f {
	case FormatGraph:
		return "graph"
	case FormatGateway:
		return "gateway"
	default:
		return "unknown"
	}
}

// Envelope is a parsed callback. Exactly one of Graph or Gateway is set,
// matching Format.
type Envelope struct {
	Format  Format
	Graph   *GraphEvent
	Gateway *GatewayEvent
}

// GraphEvent holds the text and location messages of a Graph callback.
// Status updates and other message types are dropped while parsing.
type GraphEvent struct {
	Messages []GraphMessage
}

// GraphMessage is one message with the metadata of its change block.
type GraphMessage struct {
	PhoneNumberID string
	ContactName   string
	From          string
	ID            string
	Type          domain.MessageType
	Text          string
	Location      *domain.Location
}

// GatewayEvent is a Gateway callback. To is the business number when the
// gateway sends it.
type GatewayEvent struct {
	From        string
	To          string
	ID          string
	Text        string
	ContactName string
}

// wire shapes

type graphPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Location *domain.Location `json:"location"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type gatewayMessage struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	ID          string          `json:"id"`
	Text        json.RawMessage `json:"text"`
	Name        string          `json:"name"`
	ContactName string          `json:"contact_name"`
}

type gatewayPayload struct {
	gatewayMessage
	Message *gatewayMessage `json:"message"`
}

// Parse detects the wire format of body and decodes it.
func Parse(body []byte) (*Envelope, error) {
	var g graphPayload
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if isGraph(&g) {
		return &Envelope{Format: FormatGraph, Graph: graphEvent(&g)}, nil
	}

	var p gatewayPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev, ok := gatewayEvent(&p); ok {
		return &Envelope{Format: FormatGateway, Gateway: ev}, nil
	}
	return nil, ErrUnknownFormat
}

func isGraph(g *graphPayload) bool {
	if g.Object == "whatsapp_business_account" {
		return true
	}
	for _, e := range g.Entry {
		for _, c := range e.Changes {
			if len(c.Value.Messages) > 0 {
				return true
			}
		}
	}
	return false
}

func graphEvent(g *graphPayload) *GraphEvent {
	ev := &GraphEvent{}
	for _, e := range g.Entry {
		for _, c := range e.Changes {
			v := c.Value
			var contact string
			if len(v.Contacts) > 0 {
				contact = v.Contacts[0].Profile.Name
			}
			for _, m := range v.Messages {
				gm := GraphMessage{
					PhoneNumberID: v.Metadata.PhoneNumberID,
					ContactName:   contact,
					From:          m.From,
					ID:            m.ID,
				}
				switch m.Type {
				case "text":
					gm.Type, gm.Text = domain.MessageText, m.Text.Body
				case "location":
					if m.Location == nil {
						continue
					}
					gm.Type, gm.Location = domain.MessageLocation, m.Location
					gm.Text = LocationText(*m.Location)
				default:
					continue
				}
				ev.Messages = append(ev.Messages, gm)
			}
		}
	}
	return ev
}

func gatewayEvent(p *gatewayPayload) (*GatewayEvent, bool) {
	m := p.gatewayMessage
	if p.Message != nil {
		m = *p.Message
		if m.From == "" {
			m.From = p.From
		}
		if m.To == "" {
			m.To = p.To
		}
		if len(m.Text) == 0 {
			m.Text = p.Text
		}
		if m.ID == "" {
			m.ID = p.ID
		}
		if m.Name == "" && m.ContactName == "" {
			m.ContactName = firstNonEmpty(p.Name, p.ContactName)
		}
	}
	if strings.TrimSpace(m.From) == "" {
		return nil, false
	}
	return &GatewayEvent{
		From:        m.From,
		To:          m.To,
		ID:          m.ID,
		Text:        gatewayText(m.Text),
		ContactName: firstNonEmpty(m.Name, m.ContactName),
	}, true
}

// gatewayText accepts "text": "hi" and "text": {"body": "hi"}.
func gatewayText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Body string `json:"body"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Body
	}
	return ""
}

// LocationText is the message text synthesized for a location share:
// "My location is coords:<lat>,<lng>" plus " (<name>, <address>)" when known.
func LocationText(l domain.Location) string {
	s := "My location is " + l.Coords()
	var parts []string
	for _, p := range []string{l.Name, l.Address} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s
}

// Inbound converts a Graph message for tenantID.
func (m GraphMessage) Inbound(tenantID string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{
		TenantID:    tenantID,
		Provider:    domain.ProviderGraph,
		ChannelID:   m.PhoneNumberID,
		From:        m.From,
		MessageID:   m.ID,
		Type:        m.Type,
		Text:        m.Text,
		ContactName: m.ContactName,
		Location:    m.Location,
		ReceivedAt:  at,
	}
}

// Inbound converts a Gateway event for tenantID. A missing id is replaced by
// "lam_<unix ms>".
func (e GatewayEvent) Inbound(tenantID string, at time.Time) domain.InboundMessage {
	id := e.ID
	if id == "" {
		id = fmt.Sprintf("lam_%d", at.UnixMilli())
	}
	return domain.InboundMessage{
		TenantID:    tenantID,
		Provider:    domain.ProviderGateway,
		ChannelID:   e.To,
		From:        e.From,
		MessageID:   id,
		Type:        domain.MessageText,
		Text:        e.Text,
		ContactName: e.ContactName,
		ReceivedAt:  at,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
