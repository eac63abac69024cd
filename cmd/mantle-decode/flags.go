package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logits"
)

var (
	modelPath  string
	modelsPath string
	configFile string
	fileConfig Config
	logLevel   string
	logFormat  string
	debug      bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .bgt table model",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing .bgt models",
			Destination: &modelsPath,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// decodingFlags exposes every decode.Config option. Defaults come from
// decode.DefaultConfig; only flags set on the command line override the
// config file.
func decodingFlags() []cli.Flag {
	def := decode.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "strategy",
			Aliases: []string{"decoding-strategy", "s"},
			Usage:   "beam_search, sampling, topk_sampling or topp_sampling",
			Value:   string(def.Strategy),
			Validator: func(v string) error {
				_, err := logits.ParseStrategy(v)
				return err
			},
		},
		&cli.IntFlag{Name: "min-dec-len", Usage: "minimum generated tokens before eos", Value: def.MinDecLen},
		&cli.IntFlag{Name: "max-dec-len", Aliases: []string{"n"}, Usage: "maximum generated tokens", Value: def.MaxDecLen},
		&cli.Float64Flag{Name: "temperature", Aliases: []string{"temp", "t"}, Usage: "softmax temperature", Value: def.Temperature},
		&cli.IntFlag{Name: "topk", Aliases: []string{"top-k"}, Usage: "top-k for topk_sampling", Value: def.TopK},
		&cli.Float64Flag{Name: "topp", Aliases: []string{"top-p"}, Usage: "nucleus mass for topp_sampling", Value: def.TopP},
		&cli.IntFlag{Name: "beam-size", Aliases: []string{"k"}, Usage: "beam width for beam_search", Value: def.BeamSize},
		&cli.BoolFlag{Name: "length-average", Usage: "rank by average log-probability", Value: def.LengthAverage},
		&cli.Float64Flag{Name: "length-penalty", Usage: "Wu et al. length penalty alpha (used when length-average is off)", Value: def.LengthPenalty},
		&cli.IntFlag{Name: "ngram-blocking", Usage: "forbid repeating n-grams of this order (0 = off)", Value: def.NGramBlocking},
		&cli.BoolFlag{Name: "ignore-unk", Usage: "never generate the unknown token", Value: def.IgnoreUnk},
		&cli.IntFlag{Name: "num-samples", Usage: "samples per prompt, reranked by score", Value: def.NumSamples},
		&cli.Int64Flag{Name: "seed", Usage: "sampler seed (-1 = random)", Value: def.Seed},
	}
}

// flagOptions returns the decoding options explicitly set on cmd.
func flagOptions(cmd *cli.Command) decode.Options {
	var o decode.Options
	if cmd.IsSet("strategy") {
		v := cmd.String("strategy")
		o.Strategy = &v
	}
	setInt := func(name string, dst **int) {
		if cmd.IsSet(name) {
			v := cmd.Int(name)
			*dst = &v
		}
	}
	setFloat := func(name string, dst **float64) {
		if cmd.IsSet(name) {
			v := cmd.Float64(name)
			*dst = &v
		}
	}
	setBool := func(name string, dst **bool) {
		if cmd.IsSet(name) {
			v := cmd.Bool(name)
			*dst = &v
		}
	}
	setInt("min-dec-len", &o.MinDecLen)
	setInt("max-dec-len", &o.MaxDecLen)
	setFloat("temperature", &o.Temperature)
	setInt("topk", &o.TopK)
	setFloat("topp", &o.TopP)
	setInt("beam-size", &o.BeamSize)
	setBool("length-average", &o.LengthAverage)
	setFloat("length-penalty", &o.LengthPenalty)
	setInt("ngram-blocking", &o.NGramBlocking)
	setBool("ignore-unk", &o.IgnoreUnk)
	setInt("num-samples", &o.NumSamples)
	if cmd.IsSet("seed") {
		v := cmd.Int64("seed")
		o.Seed = &v
	}
	return o
}
