package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-order-agent/internal/domain"
)

const graphBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "changes": [{
      "value": {
        "metadata": {"phone_number_id": "PN1"},
        "contacts": [{"profile": {"name": "Awa"}}],
        "messages": [
          {"from": "221770000001", "id": "wamid.1", "type": "text", "text": {"body": "Bonjour"}},
          {"from": "221770000001", "id": "wamid.2", "type": "image"},
          {"from": "221770000001", "id": "wamid.3", "type": "location",
           "location": {"latitude": 14.6928, "longitude": -17.4467, "name": "Chez moi", "address": "Rue 10"}}
        ]
      }
    }, {
      "value": {
        "metadata": {"phone_number_id": "PN2"},
        "statuses": [{"id": "wamid.9", "status": "delivered"}]
      }
    }]
  }]
}`

func TestParse_Graph(t *testing.T) {
	env, err := Parse([]byte(graphBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Format != FormatGraph || env.Graph == nil || env.Gateway != nil {
		t.Fatalf("envelope=%+v", env)
	}
	msgs := env.Graph.Messages
	if len(msgs) != 2 {
		t.Fatalf("want text+location, got %d", len(msgs))
	}
	if msgs[0].Text != "Bonjour" || msgs[0].PhoneNumberID != "PN1" || msgs[0].ContactName != "Awa" {
		t.Fatalf("text message=%+v", msgs[0])
	}
	loc := msgs[1]
	if loc.Type != domain.MessageLocation || loc.Location == nil {
		t.Fatalf("location message=%+v", loc)
	}
	want := "My location is coords:14.6928,-17.4467 (Chez moi, Rue 10)"
	if loc.Text != want {
		t.Fatalf("text=%q want %q", loc.Text, want)
	}

	in := loc.Inbound("t1", time.Unix(0, 0))
	if in.Provider != domain.ProviderGraph || in.TenantID != "t1" || in.MessageID != "wamid.3" || in.ChannelID != "PN1" {
		t.Fatalf("inbound=%+v", in)
	}
}

func TestParse_GraphDetectedWithoutObject(t *testing.T) {
	body := `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"m","type":"text","text":{"body":"hi"}}]}}]}]}`
	env, err := Parse([]byte(body))
	if err != nil || env.Format != FormatGraph || len(env.Graph.Messages) != 1 {
		t.Fatalf("env=%+v err=%v", env, err)
	}
}

func TestParse_GraphStatusOnly(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`
	env, err := Parse([]byte(body))
	if err != nil || env.Format != FormatGraph || len(env.Graph.Messages) != 0 {
		t.Fatalf("env=%+v err=%v", env, err)
	}
}

func TestParse_Gateway(t *testing.T) {
	cases := []struct {
		body string
		want GatewayEvent
	}{
		{`{"from":"2217","to":"BIZ","id":"g1","text":"salut","name":"Moussa"}`, GatewayEvent{From: "2217", To: "BIZ", ID: "g1", Text: "salut", ContactName: "Moussa"}},
		{`{"from":"2217","text":{"body":"menu"},"contact_name":"Fatou"}`, GatewayEvent{From: "2217", Text: "menu", ContactName: "Fatou"}},
		{`{"to":"BIZ","message":{"from":"2218","id":"g2","text":{"body":"yes"}}}`, GatewayEvent{From: "2218", To: "BIZ", ID: "g2", Text: "yes"}},
		{`{"from":"2219","message":{"text":"oui","name":"Ibou"}}`, GatewayEvent{From: "2219", Text: "oui", ContactName: "Ibou"}},
	}
	for _, tc := range cases {
		body, want := tc.body, tc.want
		env, err := Parse([]byte(body))
		if err != nil {
			t.Fatalf("Parse(%s): %v", body, err)
		}
		if env.Format != FormatGateway || env.Gateway == nil {
			t.Fatalf("Parse(%s) format=%v", body, env.Format)
		}
		if *env.Gateway != want {
			t.Fatalf("Parse(%s)=%+v want %+v", body, *env.Gateway, want)
		}
	}
}

func TestGatewayInbound_GeneratesID(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	in := GatewayEvent{From: "1", Text: "hi"}.Inbound("t1", at)
	if in.MessageID != "lam_1700000000123" || in.Provider != domain.ProviderGateway || in.Type != domain.MessageText {
		t.Fatalf("inbound=%+v", in)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Parse([]byte(`{"text":"no sender"}`)); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("want ErrUnknownFormat, got %v", err)
	}
}

func TestLocationText_NoLabels(t *testing.T) {
	got := LocationText(domain.Location{Latitude: 14.7, Longitude: -17.45})
	if got != "My location is coords:14.7,-17.45" {
		t.Fatalf("got %q", got)
	}
	got = LocationText(domain.Location{Latitude: 1, Longitude: 2, Address: "Plateau"})
	if got != "My location is coords:1,2 (Plateau)" {
		t.Fatalf("got %q", got)
	}
}
