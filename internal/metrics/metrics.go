package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecodeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decode_runs_total",
		Help: "Total number of decoding runs by strategy and outcome",
	}, []string{"strategy", "outcome"})

	DecodeStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_steps_total",
		Help: "The total number of decoding steps executed",
	})

	DecodeTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_tokens_total",
		Help: "The total number of tokens committed to live slots",
	})

	DecodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decode_duration_seconds",
		Help:    "Duration of decoding runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	NumericalUnderflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_numerical_underflow_total",
		Help: "Proposals whose probability was clamped to the minimum before log",
	})

	NGramBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_ngram_blocked_total",
		Help: "Logits suppressed by n-gram blocking",
	})

	BatchSlots = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decode_batch_slots",
		Help:    "Distribution of slot counts per decoding run",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	})
)
