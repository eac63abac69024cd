package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mantle-decode/internal/logger"
	"github.com/samcharles93/mantle-decode/internal/table"
)

func packCmd() *cli.Command {
	var (
		specPath string
		outPath  string
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Build a .bgt table model from a YAML spec",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"in"},
				Usage:       "YAML model spec",
				Required:    true,
				Destination: &specPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (default: spec name with .bgt)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			spec, err := table.LoadSpec(specPath)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = strings.TrimSuffix(specPath, filepath.Ext(specPath)) + ".bgt"
			}
			if err := table.PackFile(spec, outPath); err != nil {
				return fmt.Errorf("pack %s: %w", outPath, err)
			}
			log.Info("packed table model",
				"out", outPath,
				"vocab", spec.Vocab,
				"transitions", len(spec.Transitions),
			)
			return nil
		},
	}
}
