package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// ItemRequest is one (name, quantity) pair extracted from a customer message.
type ItemRequest struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

// Calculation is the priced result of an order request.
type Calculation struct {
	LineItems    []domain.LineItem
	NotFound     []string
	Total        int64
	ItemsSummary string
}

var errNoJSON = errors.New("no JSON object in model output")

// ParseExtraction decodes the extraction model's answer. It accepts
// {"items":[...]} or a bare array, optionally wrapped in prose or a code
// fence. Entries without a name or with a non-positive quantity are dropped.
func ParseExtraction(raw string) ([]ItemRequest, error) {
	s := strings.TrimSpace(raw)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errNoJSON
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return nil, errNoJSON
	}
	body := s[start : end+1]

	var items []ItemRequest
	if body[0] == '[' {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	} else {
		var wrapped struct {
			Items []ItemRequest `json:"items"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		items = wrapped.Items
	}

	out := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.ItemName) != "" && it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

// PriceOrder matches each request against the available catalog by exact,
// case-insensitive name and prices the matches. Unmatched names are
// collected in NotFound.
func PriceOrder(reqs []ItemRequest, catalog []domain.CatalogItem) Calculation {
	byName := make(map[string]domain.CatalogItem, len(catalog))
	for _, it := range catalog {
		if !it.IsAvailable {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(it.Name))
		if _, dup := byName[k]; !dup {
			byName[k] = it
		}
	}

	var calc Calculation
	var summary []string
	for _, r := range reqs {
		it, ok := byName[strings.ToLower(strings.TrimSpace(r.ItemName))]
		if !ok {
			calc.NotFound = append(calc.NotFound, r.ItemName)
			continue
		}
		li := domain.LineItem{ItemID: it.ID, Name: it.Name, Quantity: r.Quantity, UnitPrice: it.Price}
		calc.LineItems = append(calc.LineItems, li)
		calc.Total += li.Subtotal()
		summary = append(summary, fmt.Sprintf("%dx %s (%d FCFA)", li.Quantity, li.Name, li.Subtotal()))
	}
	calc.ItemsSummary = strings.Join(summary, ", ")
	return calc
}
