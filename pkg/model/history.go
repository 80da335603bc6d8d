package model

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

// History is a chat transcript spanning several questions
type History struct {
	ID        HistoryID        `json:"id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Contents  []*genai.Content `json:"contents"`
}

// Append adds a question and its final answer. Intermediate tool turns are
// not carried across questions.
func (h *History) Append(question, answer string) {
	if h.Title == "" {
		title := []rune(question)
		if len(title) > 80 {
			title = title[:80]
		}
		h.Title = string(title)
	}
	h.Contents = append(h.Contents,
		genai.NewContentFromText(question, genai.RoleUser),
		genai.NewContentFromText(answer, genai.RoleModel),
	)
}
