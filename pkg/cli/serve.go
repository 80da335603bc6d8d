package cli

import (
	"context"

	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

type askCareerParams struct {
	Question      string `json:"question" jsonschema:"Question about the career records"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Step budget for this question. Defaults to the server setting."`
}

func serveCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the ask_career tool over MCP stdio",
		Flags: cfg.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			server := newMCPServer(rt.agent)
			logging.From(ctx).Info("serving MCP over stdio")
			if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
				return goerr.Wrap(err, "mcp server stopped")
			}
			return nil
		},
	}
}

func newMCPServer(a answerRunner) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    appName,
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_career",
		Description: "Answer a question about the career records (projects, education, work experience, awards) with cited sources",
	}, askCareerHandler(a))

	return server
}

// answerRunner is the part of *agent.Agent the MCP handler needs
type answerRunner interface {
	Run(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error)
}

func askCareerHandler(a answerRunner) func(context.Context, *mcp.CallToolRequest, *askCareerParams) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, params *askCareerParams) (*mcp.CallToolResult, any, error) {
		if params.Question == "" {
			return nil, nil, goerr.New("question is required")
		}

		var opts []agent.RunOption
		if params.MaxIterations > 0 {
			opts = append(opts, agent.WithIterationBudget(params.MaxIterations))
		}

		outcome, err := a.Run(withRequestID(ctx), params.Question, opts...)
		if err != nil {
			return nil, nil, err
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: outcome.Answer},
			},
		}, nil, nil
	}
}
