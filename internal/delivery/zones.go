// Package delivery maps free-text customer locations to a delivery zone with
// a flat fee and an ETA. Matching is a deterministic keyword lookup, not
// geocoding: the first zone (in table order) whose keyword appears in the
// text wins, and unmatched text falls back to an Unknown zone.
package delivery

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// Zone is one row of the estimator table.
type Zone struct {
	Name       string
	Keywords   []string
	Fee        int64
	ETAMinutes int
	Notes      string
}

// UnknownZone is returned when no keyword matches.
var UnknownZone = Zone{
	Name:       "Unknown",
	Fee:        2000,
	ETAMinutes: 50,
	Notes:      "Approximate for non-mapped area",
}

// DefaultZones is the Dakar table. Order matters: earlier rows win ties
// (e.g. "pikine-plateau" resolves to Dakar Plateau, not Pikine).
var DefaultZones = []Zone{
	{Name: "Dakar Plateau", Keywords: []string{"plateau", "sandaga", "pikine-plateau"}, Fee: 1000, ETAMinutes: 25},
	{Name: "Almadies", Keywords: []string{"almadies", "ngor", "les almadies"}, Fee: 1500, ETAMinutes: 35},
	{Name: "Ouakam", Keywords: []string{"ouakam", "mamadou diop"}, Fee: 1200, ETAMinutes: 30},
	{Name: "Yoff", Keywords: []string{"yoff", "aeroport", "aéroport"}, Fee: 1200, ETAMinutes: 30},
	{Name: "Mermoz/Sacré-Cœur", Keywords: []string{"mermoz", "sacre coeur", "sacré-cœur", "sacre-coeur"}, Fee: 1200, ETAMinutes: 30},
	{Name: "Parcelles", Keywords: []string{"parcelles", "upa", "u\u00a0pa"}, Fee: 1400, ETAMinutes: 35},
	{Name: "Guediawaye", Keywords: []string{"guédiawaye", "guediawaye", "thiaroye"}, Fee: 1800, ETAMinutes: 45},
	{Name: "Pikine", Keywords: []string{"pikine", "keur massar"}, Fee: 1800, ETAMinutes: 45},
}

// Estimator resolves locations against an ordered zone table.
type Estimator struct {
	zones   []Zone
	unknown Zone
}

// NewEstimator builds an estimator over zones. A nil table uses DefaultZones.
func NewEstimator(zones []Zone) *Estimator {
	if zones == nil {
		zones = DefaultZones
	}
	compiled := make([]Zone, len(zones))
	for i, z := range zones {
		kw := make([]string, 0, len(z.Keywords))
		for _, k := range z.Keywords {
			if k = normalize(k); k != "" {
				kw = append(kw, k)
			}
		}
		z.Keywords = kw
		compiled[i] = z
	}
	return &Estimator{zones: compiled, unknown: UnknownZone}
}

var defaultEstimator = NewEstimator(nil)

// Estimate uses the default table.
func Estimate(locationText string) *domain.DeliveryEstimate {
	return defaultEstimator.Estimate(locationText)
}

// Estimate returns nil for blank input, the first matching zone otherwise,
// and the Unknown zone when nothing matches.
func (e *Estimator) Estimate(locationText string) *domain.DeliveryEstimate {
	text := normalize(locationText)
	if text == "" {
		return nil
	}
	for _, z := range e.zones {
		for _, k := range z.Keywords {
			if strings.Contains(text, k) {
				return toEstimate(z)
			}
		}
	}
	return toEstimate(e.unknown)
}

// Matches reports whether text names a mapped zone (not the Unknown fallback).
func (e *Estimator) Matches(text string) bool {
	est := e.Estimate(text)
	return est != nil && est.Zone != e.unknown.Name
}

// Format renders "<zone> • ~<eta> min • <fee> FCFA" with " (notes)" when set.
func Format(est *domain.DeliveryEstimate) string {
	if est == nil {
		return ""
	}
	s := fmt.Sprintf("%s • ~%d min • %d FCFA", est.Zone, est.ETAMinutes, est.Fee)
	if est.Notes != "" {
		s += " (" + est.Notes + ")"
	}
	return s
}

func toEstimate(z Zone) *domain.DeliveryEstimate {
	return &domain.DeliveryEstimate{
		Zone:       z.Name,
		Fee:        z.Fee,
		ETAMinutes: z.ETAMinutes,
		Notes:      z.Notes,
	}
}

// normalize lower-cases and composes accents so that "é" typed as e+U+0301
// still matches the precomposed keyword.
func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
