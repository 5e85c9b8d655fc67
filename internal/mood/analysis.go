package mood

// Insight is one pattern the analyst found in a window of entries.
type Insight struct {
	Pattern     string   `json:"pattern"`
	Confidence  float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Description string   `json:"description"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Analysis is a narrative summary of recent entries. It is derived per
// request and never persisted.
type Analysis struct {
	DominantMood string    `json:"dominant_mood"`
	Trends       []string  `json:"trends"`
	Insights     []Insight `json:"insights"`
	Summary      string    `json:"summary"`
}

// Fallback analysis content, returned whenever the completion service
// cannot produce a usable analysis.
const (
	FallbackDominantMood = "neutral"
	FallbackTrend        = "Unable to analyze at this time"
	FallbackSummary      = "Analysis temporarily unavailable. Please try again later."
)

// FallbackAnalysis returns a fresh copy of the fixed fallback analysis.
func FallbackAnalysis() Analysis {
	return Analysis{
		DominantMood: FallbackDominantMood,
		Trends:       []string{FallbackTrend},
		Insights:     []Insight{},
		Summary:      FallbackSummary,
	}
}

// IsFallback reports whether a equals the fixed fallback analysis.
func (a Analysis) IsFallback() bool {
	return a.DominantMood == FallbackDominantMood &&
		len(a.Trends) == 1 && a.Trends[0] == FallbackTrend &&
		len(a.Insights) == 0 &&
		a.Summary == FallbackSummary
}
