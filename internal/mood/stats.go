package mood

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Stats is a local, non-AI summary of a set of entries.
type Stats struct {
	Total           int          `json:"total"`
	Counts          map[Mood]int `json:"counts"`
	MostFrequent    Mood         `json:"most_frequent,omitempty"`
	MeanIntensity   float64      `json:"mean_intensity"`
	MedianIntensity float64      `json:"median_intensity"`
	StdDevIntensity float64      `json:"stddev_intensity"`
}

// Summarize computes per-mood counts and intensity statistics.
// Ties for MostFrequent go to the mood listed first in Moods.
func Summarize(entries []Entry) Stats {
	s := Stats{
		Total:  len(entries),
		Counts: make(map[Mood]int, len(Moods)),
	}
	if len(entries) == 0 {
		return s
	}

	data := make(stats.Float64Data, 0, len(entries))
	for _, e := range entries {
		s.Counts[e.Mood]++
		data = append(data, float64(e.Intensity))
	}

	best := 0
	for _, m := range Moods {
		if c := s.Counts[m]; c > best {
			best = c
			s.MostFrequent = m
		}
	}

	if mean, err := stats.Mean(data); err == nil {
		s.MeanIntensity = round2(mean)
	}
	if median, err := stats.Median(data); err == nil {
		s.MedianIntensity = round2(median)
	}
	if sd, err := stats.StandardDeviationPopulation(data); err == nil {
		s.StdDevIntensity = round2(sd)
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
