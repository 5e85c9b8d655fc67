package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/moodlog/internal/mood"
)

func moodNames() []string {
	names := make([]string, len(mood.Moods))
	for i, m := range mood.Moods {
		names[i] = string(m)
	}
	return names
}

func sourceNames() []string {
	names := make([]string, len(mood.Sources))
	for i, s := range mood.Sources {
		names[i] = string(s)
	}
	return names
}

var logToolDef = mcp.NewTool("mood_log",
	mcp.WithDescription("Record how the signed-in user feels right now. The entry id, owner and timestamp are assigned by the journal."),
	mcp.WithString("mood", mcp.Required(), mcp.Enum(moodNames()...), mcp.Description("Mood label")),
	mcp.WithNumber("intensity", mcp.Required(), mcp.Min(1), mcp.Max(10), mcp.Description("How strongly, 1 to 10")),
	mcp.WithString("source", mcp.Enum(sourceNames()...), mcp.Description("Where the entry came from (default manual)")),
	mcp.WithArray("tracks", mcp.WithStringItems(), mcp.Description("Music tracks playing at the time")),
	mcp.WithArray("genres", mcp.WithStringItems(), mcp.Description("Genres of those tracks")),
	mcp.WithNumber("tempo", mcp.Description("Tempo in BPM")),
	mcp.WithNumber("energy", mcp.Min(0), mcp.Max(1), mcp.Description("Track energy, 0 to 1")),
)

var listToolDef = mcp.NewTool("mood_list",
	mcp.WithDescription("List the signed-in user's mood entries, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit", mcp.Description("Max entries to return (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Entries to skip")),
)

var timelineToolDef = mcp.NewTool("mood_timeline",
	mcp.WithDescription("Chart points for the 30 most recent entries, oldest first."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var statsToolDef = mcp.NewTool("mood_stats",
	mcp.WithDescription("Counts per mood and intensity statistics over every entry. No AI involved."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var insightsToolDef = mcp.NewTool("mood_insights",
	mcp.WithDescription("AI analysis of the 20 most recent entries: dominant mood, trends, patterns and a summary. Needs at least 5 entries."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var tipsToolDef = mcp.NewTool("mood_tips",
	mcp.WithDescription("3 to 5 short, actionable suggestions based on recent entries. Needs at least 5 entries."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var askToolDef = mcp.NewTool("mood_ask",
	mcp.WithDescription("Ask a free-text question about the signed-in user's mood history."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
)
