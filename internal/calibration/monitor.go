package calibration

// WindowSizes names the three rolling windows the monitor evaluates
// at every record, defaulting to spec §4.3-sub's 100/500/2000.
type WindowSizes struct {
	Short  int
	Medium int
	Long   int
}

// DefaultWindowSizes returns the spec's stated defaults.
func DefaultWindowSizes() WindowSizes {
	return WindowSizes{Short: 100, Medium: 500, Long: 2000}
}

// Thresholds gates a window's ECE/Brier reading into "degraded".
type Thresholds struct {
	ECEThreshold              float64
	BrierDegradationFraction  float64
	AutoTriggerConservative   bool
	MinObservationsForDegrade int
}

// DefaultThresholds mirrors spec §4.3-sub's "≥10 obs in that window"
// floor with conservative default gate values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ECEThreshold:              0.1,
		BrierDegradationFraction:  0.2,
		AutoTriggerConservative:   true,
		MinObservationsForDegrade: 10,
	}
}

// WindowResult is one window's metrics at one tick.
type WindowResult struct {
	Name         string
	Observations int
	ECE          float64
	Brier        float64
	Degraded     bool
}

// Result is the monitor's per-record output across all three windows.
type Result struct {
	Windows               []WindowResult
	RecommendConservative bool
}

// Monitor is the append-only calibration tracker. Observations form a
// single append-only sequence (spec §5 ordering guarantee); window
// metrics always reflect the latest N entries of that sequence.
type Monitor struct {
	ring       *Ring
	windows    WindowSizes
	thresholds Thresholds

	baselineBrier       *float64
	baselineEstablished bool
}

// NewMonitor builds a monitor with a ring sized 2× the long window.
func NewMonitor(windows WindowSizes, thresholds Thresholds) *Monitor {
	return &Monitor{
		ring:       NewRing(2 * windows.Long),
		windows:    windows,
		thresholds: thresholds,
	}
}

// Record appends one (predicted, actual) observation and recomputes
// all three windows' metrics.
func (m *Monitor) Record(predicted float64, actual bool) Result {
	m.ring.Append(Observation{Predicted: predicted, Actual: actual})

	if !m.baselineEstablished && m.ring.Len() >= m.windows.Long {
		brier := brierScore(m.ring.Last(m.windows.Long))
		b := brier
		m.baselineBrier = &b
		m.baselineEstablished = true
	}

	named := []struct {
		name string
		size int
	}{
		{"short", m.windows.Short},
		{"medium", m.windows.Medium},
		{"long", m.windows.Long},
	}

	result := Result{}
	for _, w := range named {
		obs := m.ring.Last(w.size)
		ece := expectedCalibrationError(obs)
		brier := brierScore(obs)

		degraded := false
		if len(obs) >= m.thresholds.MinObservationsForDegrade {
			if ece > m.thresholds.ECEThreshold {
				degraded = true
			}
			if m.baselineBrier != nil && *m.baselineBrier > 0 {
				degradation := (brier - *m.baselineBrier) / *m.baselineBrier
				if degradation > m.thresholds.BrierDegradationFraction {
					degraded = true
				}
			}
		}

		result.Windows = append(result.Windows, WindowResult{
			Name:         w.name,
			Observations: len(obs),
			ECE:          ece,
			Brier:        brier,
			Degraded:     degraded,
		})
		if degraded {
			result.RecommendConservative = result.RecommendConservative || m.thresholds.AutoTriggerConservative
		}
	}

	return result
}

// BaselineBrier returns the Brier score recorded when the long window
// first filled, and whether a baseline has been established yet.
func (m *Monitor) BaselineBrier() (float64, bool) {
	if m.baselineBrier == nil {
		return 0, false
	}
	return *m.baselineBrier, true
}
