package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mantle-decode/internal/api"
	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logger"
)

func decodeCmd() *cli.Command {
	var (
		promptsPath string
		tokens      string
		outputPath  string
		batchSize   int
		noProgress  bool
	)

	return &cli.Command{
		Name:  "decode",
		Usage: "Decode prompts with a table model",
		Flags: append(append(modelFlags(),
			&cli.StringFlag{
				Name:        "prompts",
				Aliases:     []string{"i"},
				Usage:       "JSONL file of {\"id\", \"tokens\"} prompts (- for stdin)",
				Destination: &promptsPath,
			},
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "single prompt as comma separated token ids",
				Destination: &tokens,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "JSONL output file (default stdout)",
				Destination: &outputPath,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Usage:       "prompts decoded together per run (0 = all)",
				Value:       32,
				Destination: &batchSize,
			},
			&cli.BoolFlag{
				Name:        "no-progress",
				Usage:       "disable the progress bar",
				Destination: &noProgress,
			},
		), decodingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)

			prompts, err := loadPrompts(promptsPath, tokens, cmd.Root().Reader)
			if err != nil {
				return err
			}
			if len(prompts) == 0 {
				return fmt.Errorf("no prompts: set --prompts or --tokens")
			}

			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			if outputPath != "" && outputPath != "-" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			bw := bufio.NewWriter(out)

			provider := api.NewCachedModelProvider(api.ModelProviderConfig{
				DefaultModelPath: modelPath,
				ModelsPath:       modelsPath,
				Defaults:         decode.DefaultConfig(),
			})
			defer func() { _ = provider.Close() }()

			err = provider.WithModel(ctx, "", func(scorer decode.Scorer, defaults decode.Config) error {
				cfg, err := resolveDecodeConfig(cmd, defaults, fileConfig)
				if err != nil {
					return err
				}
				d, err := decode.New(cfg, scorer, decode.WithLogger(log))
				if err != nil {
					return err
				}
				return runBatches(ctx, d, batches(prompts, batchSize), bw, progressFor(len(prompts), noProgress))
			})
			if err != nil {
				return err
			}
			return bw.Flush()
		},
	}
}

func loadPrompts(path, tokens string, stdin io.Reader) ([]decode.Prompt, error) {
	switch {
	case path != "" && tokens != "":
		return nil, fmt.Errorf("--prompts and --tokens are mutually exclusive")
	case tokens != "":
		toks, err := parseTokens(tokens)
		if err != nil {
			return nil, err
		}
		return []decode.Prompt{{ID: "cli", Tokens: toks}}, nil
	case path == "-":
		if stdin == nil {
			stdin = os.Stdin
		}
		return readPrompts(stdin)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return readPrompts(f)
	default:
		return nil, nil
	}
}

func progressFor(n int, disabled bool) *progressbar.ProgressBar {
	if disabled {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("decoding"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("prompts"),
		progressbar.OptionClearOnFinish(),
	)
}

func runBatches(ctx context.Context, d *decode.Decoder, groups [][]decode.Prompt, w io.Writer, bar *progressbar.ProgressBar) error {
	log := logger.FromContext(ctx)
	start := time.Now()
	steps := 0
	for i, group := range groups {
		res, err := d.Run(ctx, group)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		steps += res.Steps
		if err := writeOutputs(w, res.Outputs); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(len(group))
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	log.Info("decode complete",
		"batches", len(groups),
		"steps", steps,
		"duration", time.Since(start),
	)
	return nil
}
