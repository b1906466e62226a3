package graph

// Hour-of-day base multipliers.
const (
	NightFactor        = 0.8
	MorningPeakFactor  = 1.8
	LateMorningFactor  = 1.4
	LunchFactor        = 1.3
	NormalFactor       = 1.0
	EveningPeakFactor  = 2.0
	EveningTaperFactor = 1.5

	// CentralFactor applies to edges touching a central zone when the base
	// factor already exceeds 1.
	CentralFactor = 1.2
	// CommercialEveningFactor applies to edges touching a commercial zone
	// during the evening peak.
	CommercialEveningFactor = 1.15
)

func normHour(hour int) int {
	h := hour % 24
	if h < 0 {
		h += 24
	}
	return h
}

// BaseFactor returns the congestion multiplier for the hour bucket.
func BaseFactor(hour int) float64 {
	h := normHour(hour)
	switch {
	case h < 6:
		return NightFactor
	case h >= 7 && h < 10:
		return MorningPeakFactor
	case h >= 10 && h < 12:
		return LateMorningFactor
	case h >= 12 && h < 14:
		return LunchFactor
	case h >= 17 && h < 20:
		return EveningPeakFactor
	case h >= 20 && h < 22:
		return EveningTaperFactor
	default:
		return NormalFactor
	}
}

// IsEveningPeak reports whether hour falls in [17,20).
func IsEveningPeak(hour int) bool {
	h := normHour(hour)
	return h >= 17 && h < 20
}

// IsPeakHour reports whether hour falls in one of the rush windows.
func IsPeakHour(hour int) bool {
	h := normHour(hour)
	return (h >= 7 && h < 10) || IsEveningPeak(h)
}

// EdgeFactor derives the multiplier of a road between two zone classes.
func EdgeFactor(hour int, a, b ZoneClass) float64 {
	f := BaseFactor(hour)
	if (a == Central || b == Central) && f > 1 {
		f *= CentralFactor
	}
	if (a == Commercial || b == Commercial) && IsEveningPeak(hour) {
		f *= CommercialEveningFactor
	}
	return f
}

// Traffic recomputes congestion multipliers from the hour of day.
type Traffic struct {
	g *Graph
}

// NewTraffic binds the traffic model to a graph.
func NewTraffic(g *Graph) *Traffic { return &Traffic{g: g} }

// Apply replaces every multiplier with the value derived from hour alone,
// so calling it twice with the same hour yields the same network.
func (t *Traffic) Apply(hour int) {
	t.g.updateCongestion(func(from, to *Node) float64 {
		return EdgeFactor(hour, from.Zone, to.Zone)
	})
}

// Reset sets every multiplier back to 1.
func (t *Traffic) Reset() {
	t.g.updateCongestion(func(_, _ *Node) float64 { return NormalFactor })
}
