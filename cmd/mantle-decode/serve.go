package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mantle-decode/internal/api"
	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeSize   int
		limits      = api.DefaultLimits()
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the decode REST API",
		Flags: append(append(modelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.IntFlag{
				Name:        "store-size",
				Usage:       "number of decode results kept for GET /v1/decode/:id",
				Value:       api.DefaultStoreSize,
				Destination: &storeSize,
			},
			&cli.IntFlag{
				Name:        "limit-prompts",
				Usage:       "max prompts per request (0 = unlimited)",
				Value:       limits.MaxPrompts,
				Destination: &limits.MaxPrompts,
			},
			&cli.IntFlag{
				Name:        "limit-dec-len",
				Usage:       "max max_dec_len a request may ask for (0 = unlimited)",
				Value:       limits.MaxDecLen,
				Destination: &limits.MaxDecLen,
			},
			&cli.IntFlag{
				Name:        "limit-beam-size",
				Usage:       "max beam_size a request may ask for (0 = unlimited)",
				Value:       limits.MaxBeamSize,
				Destination: &limits.MaxBeamSize,
			},
			&cli.IntFlag{
				Name:        "limit-num-samples",
				Usage:       "max num_samples a request may ask for (0 = unlimited)",
				Value:       limits.MaxNumSamples,
				Destination: &limits.MaxNumSamples,
			},
		), decodingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, fileConfig)
			if fileConfig.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = fileConfig.ServerAddress
			}

			// Server-wide defaults: built-ins, config file, then flags. Requests
			// override these per call.
			defaults := flagOptions(cmd).Apply(fileConfig.Decode.Apply(decode.DefaultConfig()))
			if err := defaults.Validate(); err != nil {
				return err
			}

			provider := api.NewCachedModelProvider(api.ModelProviderConfig{
				DefaultModelPath: modelPath,
				ModelsPath:       modelsPath,
				Defaults:         defaults,
			})
			defer func() { _ = provider.Close() }()

			service := api.NewDecodeService(provider, limits, log)
			server := api.NewServer(api.NewResultStore(storeSize), service)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "models_path", modelsPath, "model", modelPath)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
