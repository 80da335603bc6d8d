package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		resume string
	)

	flags := cfg.flags()
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, &cli.StringFlag{
		Name:        "resume",
		Usage:       "Transcript ID to continue (requires --bucket)",
		Destination: &resume,
	})

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions interactively, carrying earlier answers",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			var storage adapter.Storage
			if cfg.bucket != "" {
				storage, err = cfg.newStorage(ctx)
				if err != nil {
					return err
				}
			}

			input := chat.NewInput{Agent: rt.agent, Storage: storage}
			if resume != "" {
				id := model.HistoryID(resume)
				input.HistoryID = &id
			}
			session, err := chat.New(ctx, input)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
				Stderr:          c.Root().ErrWriter,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			return chatLoop(ctx, rl, c.Root().Writer, c.Root().ErrWriter, session)
		},
	}
}

func chatLoop(ctx context.Context, rl *readline.Instance, w, errW io.Writer, session *chat.Session) error {
	fmt.Fprintln(w, "Ask about the career records. Type 'exit' to quit.")
	if len(session.History().Contents) > 0 {
		fmt.Fprintf(w, "Resumed transcript %s (%s)\n", session.ID(), session.History().Title)
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		if msg == "exit" || msg == "quit" {
			break
		}

		sp := newSpinner(errW, "Thinking...")
		sp.Start()
		outcome, err := session.Send(withRequestID(ctx), msg)
		sp.Stop()
		if err != nil {
			fmt.Fprintf(errW, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "\n%s\n\n", outcome.Answer)
	}

	if id := session.ID(); id != "" {
		fmt.Fprintf(w, "Transcript saved as %s\n", id)
	}
	return nil
}
