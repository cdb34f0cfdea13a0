package commands

import (
	"github.com/urfave/cli/v3"
)

// NewApp returns the pooler command tree.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:  "pooler",
		Usage: "resolve sentence-embedding pooling strategies and embed text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (default from POOLER_LOG_LEVEL)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json (default from POOLER_LOG_FORMAT)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "show the pooling method and max length a model resolves to",
				ArgsUsage: "MODEL",
				Flags: append(poolingFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print JSON instead of a table",
					},
				),
				Action: ResolveAction,
			},
			{
				Name:      "embed",
				Usage:     "embed texts from arguments or stdin lines as NDJSON",
				ArgsUsage: "MODEL [TEXT...]",
				Flags: append(poolingFlags(),
					&cli.StringFlag{
						Name:  "output",
						Usage: "write records to this file instead of stdout",
					},
					&cli.BoolFlag{
						Name:  "tee",
						Usage: "with --output, also write records to stdout",
					},
					&cli.IntFlag{
						Name:  "max-size",
						Usage: "seal the --output file into numbered shards of at most this many bytes",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "indent JSON records",
					},
					&cli.BoolFlag{
						Name:  "omit-text",
						Usage: "leave input text out of records",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "texts per inference call",
						Value: defaultBatchSize,
					},
				),
				Action: EmbedAction,
			},
		},
	}
}
