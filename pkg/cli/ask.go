package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		showSteps bool
	)

	flags := cfg.flags()
	flags = append(flags, &cli.BoolFlag{
		Name:        "show-steps",
		Usage:       "Print each tool call before the answer",
		Destination: &showSteps,
	})

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer one question",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return errNoQuestion
			}

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			ctx = withRequestID(ctx)
			sp := newSpinner(c.Root().ErrWriter, "Thinking...")
			sp.Start()
			outcome, err := rt.agent.Run(ctx, question)
			sp.Stop()
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if showSteps {
				printSteps(w, outcome)
			}
			fmt.Fprintln(w, outcome.Answer)
			return nil
		},
	}
}

// withRequestID tags every log line of one question
func withRequestID(ctx context.Context) context.Context {
	return logging.With(ctx, logging.From(ctx).With("request_id", uuid.NewString()))
}

func newSpinner(w io.Writer, suffix string) *spinner.Spinner {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	sp.Suffix = " " + suffix
	return sp
}

func printSteps(w io.Writer, outcome *agent.Outcome) {
	for _, step := range outcome.Conversation.Steps() {
		status := "ok"
		if !step.Result.OK() {
			status = fmt.Sprintf("%s: %s", step.Result.Kind(), step.Result.Message())
		}
		if step.CacheHit {
			status += " (cached)"
		}
		fmt.Fprintf(w, "[%d] %s %v -> %s\n", step.Iteration, step.Call.Name, step.Call.Args, status)
	}
	if len(outcome.Conversation.Steps()) > 0 {
		fmt.Fprintln(w)
	}
}
