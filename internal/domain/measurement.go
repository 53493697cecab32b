package domain

import (
	"fmt"
	"math"
	"time"
)

type Tier int

const (
	TierEstimate Tier = 1
	TierVerified Tier = 2
)

type Source string

const (
	SourceGoogleSolar Source = "GOOGLE_SOLAR"
	SourceEagleView   Source = "EAGLEVIEW"
	SourceSimulated   Source = "SIMULATED"
)

type Facet struct {
	AreaSqFt       float64 `json:"areaSqFt"`
	Pitch          string  `json:"pitch"`
	PitchDegrees   float64 `json:"pitchDegrees,omitempty"`
	AzimuthDegrees float64 `json:"azimuthDegrees,omitempty"`
	Direction      string  `json:"direction,omitempty"`
}

type Measurement struct {
	Tier             Tier      `json:"tier"`
	Source           Source    `json:"source"`
	FormattedAddress string    `json:"formattedAddress,omitempty"`
	Latitude         float64   `json:"latitude,omitempty"`
	Longitude        float64   `json:"longitude,omitempty"`
	TotalAreaSqFt    float64   `json:"totalAreaSqFt"`
	PredominantPitch string    `json:"predominantPitch"`
	SquaresNeeded    float64   `json:"squaresNeeded"`
	Confidence       float64   `json:"confidence"`
	Facets           []Facet   `json:"facets,omitempty"`
	RidgeLengthFt    float64   `json:"ridgeLengthFt,omitempty"`
	ValleyLengthFt   float64   `json:"valleyLengthFt,omitempty"`
	EaveLengthFt     float64   `json:"eaveLengthFt,omitempty"`
	ImageryQuality   string    `json:"imageryQuality,omitempty"`
	ImageryDate      string    `json:"imageryDate,omitempty"`
	MaxSunshineHours float64   `json:"maxSunshineHours,omitempty"`
	CarbonOffset     float64   `json:"carbonOffsetFactor,omitempty"`
	MaxPanels        int       `json:"maxPanels,omitempty"`
	PanelCapacityW   float64   `json:"panelCapacityWatts,omitempty"`
	Cached           bool      `json:"cached"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

const (
	SquareMetersToSquareFeet = 10.764
	SquareFeetPerSquare      = 100
	maxPitchRise             = 24
)

func SquaresFor(areaSqFt float64) float64 {
	return math.Round(areaSqFt/SquareFeetPerSquare*10) / 10
}

// PitchFromDegrees renders a roof angle as rise over a 12 run.
func PitchFromDegrees(deg float64) string {
	if deg <= 0 {
		return "Flat"
	}
	rise := math.Round(math.Tan(deg*math.Pi/180) * 12)
	if rise > maxPitchRise {
		rise = maxPitchRise
	}
	if rise <= 0 {
		return "Flat"
	}
	return fmt.Sprintf("%d/12", int(rise))
}

var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func DirectionFromAzimuth(deg float64) string {
	normalized := math.Mod(deg, 360)
	if normalized < 0 {
		normalized += 360
	}
	idx := int(math.Round(normalized/45)) % len(compassPoints)
	return compassPoints[idx]
}

func (m Measurement) Clone() Measurement {
	out := m
	if m.Facets != nil {
		out.Facets = append([]Facet(nil), m.Facets...)
	}
	return out
}
