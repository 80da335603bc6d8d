package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/dossier/pkg/repository"
	"github.com/m-mizutani/dossier/pkg/usecase/index"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "index",
		Usage: "Upsert records from a YAML file and rebuild their semantic entries",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.recordsFile == "" {
				return goerr.New("records is required")
			}
			loaded, err := repository.LoadRecordsFile(cfg.recordsFile)
			if err != nil {
				return err
			}

			if cfg.backend == backendMemory {
				logging.From(ctx).Warn("memory backend keeps records only for this process")
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			s, err := cfg.newStores(ctx, gemini)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(); err != nil {
					logging.From(ctx).Warn("failed to close stores", "error", err)
				}
			}()

			if s.recordsW == nil || s.indexW == nil {
				return goerr.New("backend does not accept record writes", goerr.V("backend", cfg.backend))
			}

			report, err := index.New(s.recordsW, s.indexW, gemini).Index(ctx, loaded)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "indexed %d records\n", len(report.Indexed))
			for _, id := range report.Removed {
				fmt.Fprintf(w, "removed stale entry %s\n", id)
			}
			return nil
		},
	}
}
