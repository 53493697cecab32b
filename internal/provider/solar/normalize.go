package solar

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"roofline/internal/domain"
)

type buildingInsightsResponse struct {
	ImageryQuality string `json:"imageryQuality"`
	ImageryDate    *struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Day   int `json:"day"`
	} `json:"imageryDate"`
	SolarPotential struct {
		MaxArrayPanelsCount        int     `json:"maxArrayPanelsCount"`
		PanelCapacityWatts         float64 `json:"panelCapacityWatts"`
		MaxSunshineHoursPerYear    float64 `json:"maxSunshineHoursPerYear"`
		CarbonOffsetFactorKgPerMwh float64 `json:"carbonOffsetFactorKgPerMwh"`
		MaxArrayAreaMeters2        float64 `json:"maxArrayAreaMeters2"`
		WholeRoofStats             struct {
			AreaMeters2 float64 `json:"areaMeters2"`
		} `json:"wholeRoofStats"`
		RoofSegmentStats []roofSegment `json:"roofSegmentStats"`
	} `json:"solarPotential"`
}

type roofSegment struct {
	PitchDegrees   float64 `json:"pitchDegrees"`
	AzimuthDegrees float64 `json:"azimuthDegrees"`
	Stats          struct {
		AreaMeters2 float64 `json:"areaMeters2"`
	} `json:"stats"`
}

func normalize(raw *buildingInsightsResponse, now time.Time) domain.Measurement {
	sp := raw.SolarPotential

	areaM2 := sp.WholeRoofStats.AreaMeters2
	if areaM2 == 0 {
		areaM2 = sp.MaxArrayAreaMeters2
	}
	areaSqFt := round(areaM2*domain.SquareMetersToSquareFeet, 2)

	quality := imageryQuality(raw.ImageryQuality)

	m := domain.Measurement{
		Tier:             domain.TierEstimate,
		Source:           domain.SourceGoogleSolar,
		TotalAreaSqFt:    areaSqFt,
		PredominantPitch: predominantPitch(sp.RoofSegmentStats),
		Confidence:       confidenceFor(quality),
		Facets:           facets(sp.RoofSegmentStats),
		MaxSunshineHours: round(sp.MaxSunshineHoursPerYear, 1),
		CarbonOffset:     round(sp.CarbonOffsetFactorKgPerMwh, 2),
		MaxPanels:        sp.MaxArrayPanelsCount,
		PanelCapacityW:   math.Trunc(sp.PanelCapacityWatts),
		FetchedAt:        now,
	}
	if quality != "Unknown" {
		m.ImageryQuality = quality
	}
	if areaSqFt > 0 {
		m.SquaresNeeded = domain.SquaresFor(areaSqFt)
	}
	if d := raw.ImageryDate; d != nil && d.Year > 0 && d.Month > 0 {
		m.ImageryDate = fmt.Sprintf("%04d-%02d", d.Year, d.Month)
		if d.Day > 0 {
			m.ImageryDate += fmt.Sprintf("-%02d", d.Day)
		}
	}

	return m
}

// imageryQuality turns "IMAGERY_QUALITY_HIGH" or "HIGH" into "High".
func imageryQuality(raw string) string {
	q := strings.TrimPrefix(strings.ToUpper(raw), "IMAGERY_QUALITY_")
	switch q {
	case "", "UNSPECIFIED":
		return "Unknown"
	}
	q = strings.ReplaceAll(strings.ToLower(q), "_", " ")
	return strings.ToUpper(q[:1]) + q[1:]
}

func confidenceFor(quality string) float64 {
	switch quality {
	case "High":
		return 0.85
	case "Medium":
		return 0.7
	}
	return 0.5
}

// predominantPitch picks the pitch covering the most roof area.
func predominantPitch(segments []roofSegment) string {
	if len(segments) == 0 {
		return "Unknown"
	}

	areas := map[string]float64{}
	for _, s := range segments {
		areas[domain.PitchFromDegrees(s.PitchDegrees)] += s.Stats.AreaMeters2
	}

	best, bestArea := "", -1.0
	for pitch, area := range areas {
		if area > bestArea || (area == bestArea && pitch < best) {
			best, bestArea = pitch, area
		}
	}
	return best
}

func facets(segments []roofSegment) []domain.Facet {
	if len(segments) == 0 {
		return nil
	}

	out := make([]domain.Facet, 0, len(segments))
	for _, s := range segments {
		out = append(out, domain.Facet{
			AreaSqFt:       round(s.Stats.AreaMeters2*domain.SquareMetersToSquareFeet, 2),
			Pitch:          domain.PitchFromDegrees(s.PitchDegrees),
			PitchDegrees:   round(s.PitchDegrees, 1),
			AzimuthDegrees: round(s.AzimuthDegrees, 1),
			Direction:      domain.DirectionFromAzimuth(s.AzimuthDegrees),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AreaSqFt > out[j].AreaSqFt
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
