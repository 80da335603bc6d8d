package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestToolsCommand(t *testing.T) {
	stdout := &bytes.Buffer{}
	app := newApp(stdout, &bytes.Buffer{})
	gt.NoError(t, app.Run(context.Background(), []string{"dossier", "tools"}))

	var catalog []map[string]any
	gt.NoError(t, json.Unmarshal(stdout.Bytes(), &catalog))
	gt.A(t, catalog).Length(5)
	gt.Equal(t, catalog[0]["name"], any("rag_search_by_domain"))
	gt.Map(t, catalog[1]).HasKey("parameters")
}

func TestAskRequiresQuestion(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	err := app.Run(context.Background(), []string{"dossier", "ask"})
	gt.True(t, errors.Is(err, errNoQuestion))
}

func TestRejectsUnknownLogLevel(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	gt.Error(t, app.Run(context.Background(), []string{"dossier", "--log-level", "loud", "tools"}))
}

func TestUnknownBackend(t *testing.T) {
	cfg := &config{backend: "sqlite"}
	_, err := cfg.newStores(context.Background(), nil)
	gt.Error(t, err)
}

func TestBigQueryBackendRequiresDataset(t *testing.T) {
	cfg := &config{backend: backendBigQuery, project: "p"}
	_, err := cfg.newStores(context.Background(), nil)
	gt.Error(t, err)
}

type mockRunner struct {
	run func(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error)
}

func (m *mockRunner) Run(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error) {
	return m.run(ctx, question, opts...)
}

func TestAskCareerHandler(t *testing.T) {
	var asked string
	runner := &mockRunner{
		run: func(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error) {
			asked = question
			return &agent.Outcome{Answer: "Career Bot", Reason: agent.ReasonAnswered, Hint: model.Hint{}}, nil
		},
	}
	handler := askCareerHandler(runner)

	t.Run("answers", func(t *testing.T) {
		result, _, err := handler(context.Background(), nil, &askCareerParams{Question: "latest project?", MaxIterations: 3})
		gt.NoError(t, err)
		gt.Equal(t, asked, "latest project?")
		gt.A(t, result.Content).Length(1)
		text, ok := result.Content[0].(*mcp.TextContent)
		gt.True(t, ok)
		gt.Equal(t, text.Text, "Career Bot")
	})

	t.Run("empty question", func(t *testing.T) {
		_, _, err := handler(context.Background(), nil, &askCareerParams{})
		gt.Error(t, err)
	})
}

func TestNewMCPServer(t *testing.T) {
	gt.NotNil(t, newMCPServer(&mockRunner{}))
}
