package agent_test

import (
	"testing"

	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
)

type panicCiter struct{}

func (panicCiter) Citations() []model.Citation { panic("broken payload") }

func TestSynthesize(t *testing.T) {
	bot := &model.Record{ID: "p2", Type: model.RecordTypeProject, Title: "Career Bot", StartDate: date(2024, 10, 1)}
	pipeline := &model.Record{ID: "p1", Type: model.RecordTypeProject, Title: "Log Pipeline", StartDate: date(2023, 1, 1), EndDate: date(2023, 6, 30)}
	results := []*model.ToolResult{
		model.Success(bot, nil),
		model.Success(pipeline, nil),
		model.Failure(model.ErrorKindNotFound, "missing"),
		model.Success(bot, nil),
	}

	t.Run("cites mentioned records once", func(t *testing.T) {
		got := agent.Synthesize("Your latest project is career bot.", results)
		gt.Equal(t, got, "Your latest project is career bot.\n\nSources:\n- p2: Career Bot (2024-10-01 to present)")
	})

	t.Run("matches by id", func(t *testing.T) {
		got := agent.Synthesize("See p1.", results)
		gt.S(t, got).Contains("- p1: Log Pipeline (2023-01-01 to 2023-06-30)")
		gt.S(t, got).NotContains("Career Bot")
	})

	t.Run("unmentioned records are not cited", func(t *testing.T) {
		got := agent.Synthesize("No matching records were found.", results)
		gt.Equal(t, got, "No matching records were found.")
	})

	t.Run("panicking payload leaves draft unchanged", func(t *testing.T) {
		broken := []*model.ToolResult{model.Success(panicCiter{}, nil)}
		gt.Equal(t, agent.Synthesize("draft", broken), "draft")
	})
}

