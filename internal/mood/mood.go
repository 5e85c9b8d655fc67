package mood

import (
	"time"
)

// Mood is one of the closed set of mood labels an entry can carry.
type Mood string

const (
	Happy       Mood = "happy"
	Sad         Mood = "sad"
	Energetic   Mood = "energetic"
	Calm        Mood = "calm"
	Anxious     Mood = "anxious"
	Content     Mood = "content"
	Excited     Mood = "excited"
	Melancholic Mood = "melancholic"
)

// Moods lists every valid mood in display order.
var Moods = []Mood{Happy, Sad, Energetic, Calm, Anxious, Content, Excited, Melancholic}

// ParseMood normalizes s and returns the matching Mood.
func ParseMood(s string) (Mood, bool) {
	n := Mood(Normalize(s))
	for _, m := range Moods {
		if m == n {
			return m, true
		}
	}
	return "", false
}

// Source records where an entry came from.
type Source string

const (
	SourceManual     Source = "manual"
	SourceSpotify    Source = "spotify"
	SourceYouTube    Source = "youtube"
	SourceAppleMusic Source = "apple_music"
)

// Sources lists every valid source.
var Sources = []Source{SourceManual, SourceSpotify, SourceYouTube, SourceAppleMusic}

// ParseSource normalizes s and returns the matching Source.
// Spaces and hyphens are accepted in place of underscores ("apple music").
func ParseSource(s string) (Source, bool) {
	n := Normalize(s)
	n = underscoreReplacer.Replace(n)
	for _, src := range Sources {
		if string(src) == n {
			return src, true
		}
	}
	return "", false
}

// Intensity bounds (inclusive).
const (
	MinIntensity = 1
	MaxIntensity = 10
)

// ValidIntensity reports whether n is within [MinIntensity, MaxIntensity].
func ValidIntensity(n int) bool {
	return n >= MinIntensity && n <= MaxIntensity
}

// Metadata holds optional attributes captured alongside an entry.
// Never required for the pipeline to work.
type Metadata struct {
	Tracks []string `json:"tracks,omitempty"`
	Genres []string `json:"genres,omitempty"`
	Tempo  *float64 `json:"tempo,omitempty"`
	Energy *float64 `json:"energy,omitempty"`
}

// IsZero reports whether no metadata field is set.
func (m *Metadata) IsZero() bool {
	return m == nil || (len(m.Tracks) == 0 && len(m.Genres) == 0 && m.Tempo == nil && m.Energy == nil)
}

// Entry is one recorded mood observation. Entries are immutable once stored.
type Entry struct {
	// ID is a ULID assigned by the store on creation
	ID string `json:"id"`

	// UserID is the owning session identity
	UserID string `json:"user_id"`

	Mood      Mood `json:"mood"`
	Intensity int  `json:"intensity"`

	// Timestamp is assigned by the store's clock at write time
	Timestamp time.Time `json:"timestamp"`

	Source   Source    `json:"source"`
	Metadata *Metadata `json:"metadata,omitempty"`
}
