package cli

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Print the retrieval tool catalog as JSON",
		Action: func(ctx context.Context, c *cli.Command) error {
			registry, err := newRegistry(nil)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(registry.Describe()); err != nil {
				return goerr.Wrap(err, "failed to encode tool catalog")
			}
			return nil
		},
	}
}
