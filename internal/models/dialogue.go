// Package models defines dialogue and generation types for NamePlay.
package models

import (
	"encoding/json"
	"time"
)

// DialogueState represents the step a dialogue session is in.
type DialogueState string

const (
	// StateForm collects age and gender before the chat starts.
	StateForm DialogueState = "form"
	// StateChat reveals catalog questions one at a time.
	StateChat DialogueState = "chat"
	// StateResult shows the generated names. Only a reset leaves it.
	StateResult DialogueState = "result"
)

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderSystem Sender = "system"
	SenderUser   Sender = "user"
)

// MessageKind tells the presentation layer how to render a message.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindResult MessageKind = "result"
)

// Message is one entry of a session transcript. Messages are never mutated after creation.
type Message struct {
	ID        int64       `json:"id"`
	Sender    Sender      `json:"sender"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

// Question is one catalog prompt. An empty Field means the prompt captures nothing.
type Question struct {
	ID     int    `json:"id"`
	Prompt string `json:"prompt"`
	Field  string `json:"field,omitempty"`
}

// Bound reports whether answers to q are stored in the AnswerRecord.
func (q Question) Bound() bool {
	return q.Field != ""
}

// AnswerRecord accumulates what the user told us during one session.
type AnswerRecord struct {
	Age     string            `json:"age"`
	Gender  string            `json:"gender"`
	Answers map[string]string `json:"answers"`
}

// NewAnswerRecord returns an empty record ready for answers.
func NewAnswerRecord() AnswerRecord {
	return AnswerRecord{Answers: make(map[string]string)}
}

// Clone returns a deep copy of the record.
func (a AnswerRecord) Clone() AnswerRecord {
	out := AnswerRecord{Age: a.Age, Gender: a.Gender, Answers: make(map[string]string, len(a.Answers))}
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	return out
}

// GenerationRequest is the frozen AnswerRecord sent to the name generation service.
type GenerationRequest struct {
	Age     string
	Gender  string
	Answers map[string]string
}

// NewGenerationRequest snapshots the record.
func NewGenerationRequest(a AnswerRecord) GenerationRequest {
	c := a.Clone()
	return GenerationRequest{Age: c.Age, Gender: c.Gender, Answers: c.Answers}
}

// MarshalJSON flattens the request into {age, gender, <field>...}.
func (r GenerationRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]string, len(r.Answers)+2)
	for k, v := range r.Answers {
		body[k] = v
	}
	body["age"] = r.Age
	body["gender"] = r.Gender
	return json.Marshal(body)
}

// GenerationResult is the display-ready ranked set of suggested names.
// Counts is aligned positionally with Names.
type GenerationResult struct {
	Names      []string                     `json:"names"`
	Reasons    map[string]map[string]string `json:"reasons"`
	Counts     []int                        `json:"counts"`
	TotalCount int                          `json:"total_count"`
}

// CountFor returns the count reported for name, or 0 when the name is unknown.
func (g GenerationResult) CountFor(name string) int {
	for i, n := range g.Names {
		if n == name && i < len(g.Counts) {
			return g.Counts[i]
		}
	}
	return 0
}

// TopName returns the first suggested name, or "" when there is none.
func (g GenerationResult) TopName() string {
	if len(g.Names) == 0 {
		return ""
	}
	return g.Names[0]
}

// Fallback values used when name generation fails.
const (
	FallbackName        = "Unknown"
	FallbackReasonKey   = "error"
	FallbackExplanation = "이름 생성 중 오류가 발생했습니다."
)

// FallbackResult returns the deterministic placeholder shown after a failed generation.
func FallbackResult() GenerationResult {
	return GenerationResult{
		Names:      []string{FallbackName},
		Reasons:    map[string]map[string]string{FallbackName: {FallbackReasonKey: FallbackExplanation}},
		Counts:     []int{1},
		TotalCount: 1,
	}
}
