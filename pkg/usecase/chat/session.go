// Package chat carries answers across questions in an interactive session.
package chat

import (
	"context"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Answerer runs one question-answer cycle. *agent.Agent satisfies it.
type Answerer interface {
	Run(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error)
}

// Session manages an interactive chat session
type Session struct {
	agent   Answerer
	storage adapter.Storage

	history *model.History
}

// NewInput contains parameters for creating a new chat session
type NewInput struct {
	Agent     Answerer
	Storage   adapter.Storage  // Optional: transcripts are kept in memory only when nil
	HistoryID *model.HistoryID // Optional: specify to continue existing conversation
}

func New(ctx context.Context, input NewInput) (*Session, error) {
	if input.Agent == nil {
		return nil, goerr.New("agent is required")
	}

	history := &model.History{}
	if input.HistoryID != nil {
		if input.Storage == nil {
			return nil, goerr.New("resuming a transcript requires storage", goerr.V("id", *input.HistoryID))
		}
		loaded, err := loadHistory(ctx, input.Storage, *input.HistoryID)
		if err != nil {
			return nil, err
		}
		history = loaded
	}

	return &Session{
		agent:   input.Agent,
		storage: input.Storage,
		history: history,
	}, nil
}

// ID returns the transcript id, empty until the first save
func (s *Session) ID() model.HistoryID {
	return s.history.ID
}

// History returns the transcript
func (s *Session) History() *model.History {
	return s.history
}

// Send answers message with the previous answers as context. Fallback answers
// are not carried into later questions. A failed transcript save is logged,
// not returned.
func (s *Session) Send(ctx context.Context, message string) (*agent.Outcome, error) {
	outcome, err := s.agent.Run(ctx, message, agent.WithHistory(s.history.Contents))
	if err != nil {
		return nil, err
	}
	if outcome.Fallback() {
		return outcome, nil
	}

	s.history.Append(message, outcome.Answer)
	if s.storage != nil {
		if err := saveHistory(ctx, s.storage, s.history); err != nil {
			logging.From(ctx).Warn("failed to save transcript", "error", err)
		}
	}
	return outcome, nil
}
