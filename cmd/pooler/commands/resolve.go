package commands

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/crimson-sun/pooler/internal/pooling"
)

// resolution is the resolve command's JSON shape.
type resolution struct {
	Model     string         `json:"model"`
	Kind      string         `json:"kind"`
	Method    pooling.Method `json:"method"`
	MaxLength int            `json:"maxlength,omitempty"`
}

// ResolveAction prints the pooling strategy a model resolves to, without
// loading the encoder.
func ResolveAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd)
	if err != nil {
		return err
	}

	cfg, err := poolingConfig(ctx, cmd, app, cmd.Args().First())
	if err != nil {
		return err
	}
	spec, err := app.Factory().Resolve(ctx, cfg)
	if err != nil {
		return err
	}

	r := resolution{
		Model:     cfg.Path.String(),
		Kind:      cfg.Path.Kind().String(),
		Method:    spec.Method,
		MaxLength: spec.MaxLength,
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printResolution(w, r)
	return nil
}

func printResolution(w io.Writer, r resolution) {
	maxLen := "none"
	if r.MaxLength > 0 {
		maxLen = strconv.Itoa(r.MaxLength)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODEL", "KIND", "METHOD", "MAXLENGTH"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{r.Model, r.Kind, r.Method.String(), maxLen})
	table.Render()
}
