package eagleview

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"roofline/internal/domain"
)

const reportConfidence = 0.98

// normalizeReport maps a Tier-2 report onto a Measurement. Report layouts
// vary by product, so every field has a few accepted spellings.
func normalizeReport(raw map[string]any, source domain.Source, now time.Time) domain.Measurement {
	roof := object(raw, "roofMeasurements")
	if roof == nil {
		roof = object(raw, "roof")
	}
	if roof == nil {
		roof = map[string]any{}
	}

	area := firstNumber(roof, "totalArea", "totalRoofArea", "area")
	details := object(roof, "details")

	m := domain.Measurement{
		Tier:             domain.TierVerified,
		Source:           source,
		TotalAreaSqFt:    area,
		PredominantPitch: reportPitch(roof),
		Confidence:       reportConfidence,
		Facets:           reportFacets(roof),
		RidgeLengthFt:    lineLength(details, roof, "ridges", "ridgeLength"),
		ValleyLengthFt:   lineLength(details, roof, "valleys", "valleyLength"),
		EaveLengthFt:     lineLength(details, roof, "eaves", "eaveLength"),
		FetchedAt:        now,
	}
	if area > 0 {
		m.SquaresNeeded = domain.SquaresFor(area)
	}
	return m
}

// lineLength prefers details.<short> and falls back to the flat roof
// fields, where some reports put ridges next to the area.
func lineLength(details, roof map[string]any, short, flat string) float64 {
	if v := firstNumber(details, short); v != 0 {
		return v
	}
	return firstNumber(roof, flat, short)
}

func reportPitch(roof map[string]any) string {
	for _, key := range []string{"predominantPitch", "pitch"} {
		switch v := roof[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return domain.PitchFromDegrees(v)
		}
	}
	return "Unknown"
}

func reportFacets(roof map[string]any) []domain.Facet {
	list, _ := roof["facets"].([]any)
	if len(list) == 0 {
		return nil
	}

	out := make([]domain.Facet, 0, len(list))
	for _, item := range list {
		f, ok := item.(map[string]any)
		if !ok {
			continue
		}
		facet := domain.Facet{
			AreaSqFt:       firstNumber(f, "area", "areaSqFt"),
			AzimuthDegrees: firstNumber(f, "azimuth"),
		}
		switch p := f["pitch"].(type) {
		case string:
			facet.Pitch = p
		case float64:
			facet.Pitch = fmt.Sprintf("%d/12", int(math.Round(p)))
		}
		if dir, ok := f["compass"].(string); ok && dir != "" {
			facet.Direction = dir
		} else if _, ok := f["azimuth"]; ok {
			facet.Direction = domain.DirectionFromAzimuth(facet.AzimuthDegrees)
		}
		out = append(out, facet)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AreaSqFt > out[j].AreaSqFt
	})
	return out
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	o, _ := m[key].(map[string]any)
	return o
}

// firstNumber returns the first non-zero numeric value among keys. Numeric
// strings are accepted.
func firstNumber(m map[string]any, keys ...string) float64 {
	if m == nil {
		return 0
	}
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}
