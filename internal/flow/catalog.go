package flow

import (
	"fmt"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// Catalog is the fixed, ordered list of chat questions. Entry 0 is the greeting.
type Catalog struct {
	questions []models.Question
}

// DefaultQuestions is the production question sequence.
var DefaultQuestions = []models.Question{
	{ID: 0, Prompt: "안녕! 몇 가지 질문에 더 답해볼까요? 😊"},
	{ID: 1, Prompt: "MBTI가 뭐야?", Field: "questionOne"},
	{ID: 2, Prompt: "현재 직업이나 꿈꾸는 직업은?", Field: "questionTwo"},
	{ID: 3, Prompt: "너만의 독특한 점은?", Field: "questionThree"},
	{ID: 4, Prompt: "가장 좋아하는 취미는 뭐야?", Field: "questionFour"},
	{ID: 5, Prompt: "친구들이 너를 한 단어로 표현한다면?", Field: "questionFive"},
}

// NewCatalog validates and wraps a question list. The first question must be
// unbound, every later one must bind a distinct field, and IDs must increase.
func NewCatalog(questions []models.Question) (Catalog, error) {
	if len(questions) < 2 {
		return Catalog{}, fmt.Errorf("catalog needs a greeting and at least one question, got %d entries", len(questions))
	}
	if questions[0].Bound() {
		return Catalog{}, fmt.Errorf("greeting must not bind a field, got %q", questions[0].Field)
	}
	seen := make(map[string]bool, len(questions))
	for i, q := range questions[1:] {
		if !q.Bound() {
			return Catalog{}, fmt.Errorf("question %d does not bind a field", q.ID)
		}
		if seen[q.Field] {
			return Catalog{}, fmt.Errorf("field %q bound twice", q.Field)
		}
		seen[q.Field] = true
		if q.ID <= questions[i].ID {
			return Catalog{}, fmt.Errorf("question ids must increase, %d follows %d", q.ID, questions[i].ID)
		}
	}
	qs := make([]models.Question, len(questions))
	copy(qs, questions)
	return Catalog{questions: qs}, nil
}

// DefaultCatalog returns the production catalog.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(DefaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("default catalog is invalid: %v", err))
	}
	return c
}

// Len returns the number of entries including the greeting.
func (c Catalog) Len() int {
	return len(c.questions)
}

// At returns the i-th entry.
func (c Catalog) At(i int) (models.Question, bool) {
	if i < 0 || i >= len(c.questions) {
		return models.Question{}, false
	}
	return c.questions[i], true
}

// Greeting returns entry 0.
func (c Catalog) Greeting() models.Question {
	return c.questions[0]
}

// Fields returns the bound field names in catalog order.
func (c Catalog) Fields() []string {
	fields := make([]string, 0, len(c.questions)-1)
	for _, q := range c.questions {
		if q.Bound() {
			fields = append(fields, q.Field)
		}
	}
	return fields
}

// Complete reports whether rec holds a non-empty value for every bound field.
func (c Catalog) Complete(rec models.AnswerRecord) bool {
	for _, f := range c.Fields() {
		if rec.Answers[f] == "" {
			return false
		}
	}
	return true
}
