package ai

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// Answers used when the completion service gives nothing usable.
const (
	EmptyAnswer = "I apologize, but I could not process your query at this time."
	ErrorAnswer = "I apologize, but I encountered an error processing your question. Please try again."
)

const (
	assistantPersona = "You are a supportive AI assistant helping users understand their emotional journey. " +
		"Provide clear, empathetic responses based on their data."

	assistantTemperature = 0.8
	assistantMaxTokens   = 500
)

// Responder answers free-text questions about a user's entries.
type Responder struct {
	c Completer
}

// NewResponder creates a responder over c.
func NewResponder(c Completer) *Responder {
	return &Responder{c: c}
}

// askContext is serialized as the question's context.
type askContext struct {
	Entries []promptEntry `json:"entries"`
}

// Ask sends the question with every given entry as context. An empty
// question is rejected before any request. Service failures are absorbed
// into ErrorAnswer; the error is only ever INVALID_REQUEST.
func (r *Responder) Ask(ctx context.Context, question string, entries []mood.Entry) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.NewInvalidRequest("question is required")
	}

	data, err := json.Marshal(askContext{Entries: promptEntries(entries)})
	if err != nil {
		log.Printf("[responder] failed to encode context: %v", err)
		return ErrorAnswer, nil
	}

	content, err := r.c.Complete(ctx, Request{
		System:      assistantPersona,
		User:        "Context: " + string(data) + "\n\nQuestion: " + question,
		Temperature: assistantTemperature,
		MaxTokens:   assistantMaxTokens,
	})
	if err != nil {
		log.Printf("[responder] completion failed: %v", err)
		return ErrorAnswer, nil
	}
	if content == "" {
		return EmptyAnswer, nil
	}
	return content, nil
}
