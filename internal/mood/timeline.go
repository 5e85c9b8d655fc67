package mood

// TimelineLimit is the number of most recent entries plotted on the timeline.
const TimelineLimit = 30

// Colors maps each mood to its chart color.
var Colors = map[Mood]string{
	Happy:       "#FFD700",
	Sad:         "#95B8D1",
	Energetic:   "#FF6B6B",
	Calm:        "#4ECDC4",
	Anxious:     "#FF8C42",
	Content:     "#98D8C8",
	Excited:     "#FF69B4",
	Melancholic: "#9B87C7",
}

// ChartPoint is one plotted entry.
type ChartPoint struct {
	EntryID   string `json:"entry_id"`
	Date      string `json:"date"` // MM/DD
	Intensity int    `json:"intensity"`
	Mood      Mood   `json:"mood"`
	Color     string `json:"color"`
}

// Timeline converts entries (newest first) into chart points in chronological
// order, keeping at most the limit most recent entries. limit <= 0 uses TimelineLimit.
func Timeline(entries []Entry, limit int) []ChartPoint {
	if limit <= 0 {
		limit = TimelineLimit
	}
	n := min(len(entries), limit)

	points := make([]ChartPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		e := entries[i]
		points = append(points, ChartPoint{
			EntryID:   e.ID,
			Date:      e.Timestamp.Format("01/02"),
			Intensity: e.Intensity,
			Mood:      e.Mood,
			Color:     Colors[e.Mood],
		})
	}
	return points
}
