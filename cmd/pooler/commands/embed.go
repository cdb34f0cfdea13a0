package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/crimson-sun/pooler/internal/embedder"
	"github.com/crimson-sun/pooler/internal/output"
	"github.com/crimson-sun/pooler/internal/output/file"
	"github.com/crimson-sun/pooler/internal/output/multi"
	"github.com/crimson-sun/pooler/internal/output/stdout"
)

const defaultBatchSize = 32

// EmbedAction embeds texts given as arguments, or one per line on stdin,
// and writes one NDJSON record per text.
func EmbedAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("no model given")
	}
	model, texts := args[0], args[1:]

	cfg, err := poolingConfig(ctx, cmd, app, model)
	if err != nil {
		return err
	}
	strategy, err := app.Factory().Create(ctx, cfg)
	if err != nil {
		return err
	}

	emb, err := embedder.Load(ctx, strategy, app.Store,
		embedder.WithLibraryPath(app.Config.Engine.LibraryPath),
		embedder.WithThreads(app.Config.Engine.IntraOpThreads, app.Config.Engine.InterOpThreads),
	)
	if err != nil {
		return err
	}
	defer emb.Close()

	out, err := openOutput(cmd, app)
	if err != nil {
		return err
	}
	defer out.Close()

	next := argTexts(texts)
	if len(texts) == 0 {
		next = lineTexts(cmd.Root().Reader)
	}

	batchSize := int(cmd.Int("batch-size"))
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	app.Logger.Info("embedding",
		"model", cfg.Path.String(),
		"method", strategy.Method().String(),
		"maxlength", strategy.Params().MaxLength,
		"dim", emb.Dim(),
	)

	written := 0
	for {
		batch, err := next(batchSize)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		res, err := emb.Embed(ctx, batch)
		if err != nil {
			return err
		}
		recs, err := output.FormatBatch(output.Batch{
			Model:  model,
			Method: strategy.Method(),
			Texts:  batch,
			Output: res.Output,
			Mask:   res.Mask,
			SeqLen: res.SeqLen,
			Offset: written,
		}, cmd.Bool("omit-text"))
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := out.Write(ctx, rec); err != nil {
				return err
			}
		}
		written += len(batch)
	}

	app.Logger.Info("done", "records", written)
	return nil
}

// openOutput returns stdout, the --output file, or both with --tee.
func openOutput(cmd *cli.Command, app *AppContext) (output.Output, error) {
	pretty := app.Config.Output.Pretty || cmd.Bool("pretty")
	path := app.Config.Output.Path
	if cmd.IsSet("output") {
		path = cmd.String("output")
	}
	if path == "" {
		return stdout.New(pretty), nil
	}

	var opts []file.Option
	if n := cmd.Int("max-size"); n > 0 {
		opts = append(opts, file.WithMaxSize(int64(n)))
	}
	f, err := file.New(path, opts...)
	if err != nil {
		return nil, err
	}
	if cmd.Bool("tee") {
		return multi.New(f, stdout.New(pretty)), nil
	}
	return f, nil
}

// textSource returns up to n texts per call and an empty slice when done.
type textSource func(n int) ([]string, error)

func argTexts(texts []string) textSource {
	return func(n int) ([]string, error) {
		n = min(n, len(texts))
		batch := texts[:n]
		texts = texts[n:]
		return batch, nil
	}
}

// lineTexts reads one text per non-blank line.
func lineTexts(r io.Reader) textSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return func(n int) ([]string, error) {
		var batch []string
		for len(batch) < n && sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				batch = append(batch, line)
			}
		}
		return batch, sc.Err()
	}
}
