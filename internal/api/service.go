package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logger"
)

// DecodeService runs decode requests against models from a provider.
type DecodeService struct {
	provider ModelProvider
	limits   Limits
	log      logger.Logger
	clock    func() time.Time
}

// NewDecodeService returns a service that rejects requests outside limits.
// A nil log falls back to logger.Default.
func NewDecodeService(provider ModelProvider, limits Limits, log logger.Logger) *DecodeService {
	if log == nil {
		log = logger.Default()
	}
	return &DecodeService{
		provider: provider,
		limits:   limits,
		log:      log,
		clock:    time.Now,
	}
}

// Decode validates req, runs the decoder and returns the completed response.
func (s *DecodeService) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResponse, error) {
	if len(req.Prompts) == 0 {
		return nil, newInvalidRequest("prompts: at least one prompt is required")
	}
	if err := s.limits.checkPrompts(len(req.Prompts)); err != nil {
		return nil, err
	}

	resp := &DecodeResponse{
		ID:        newDecodeID(),
		Object:    "decode",
		CreatedAt: s.clock().Unix(),
		Model:     req.Model,
		Status:    "in_progress",
	}
	prompts := make([]decode.Prompt, len(req.Prompts))
	copy(prompts, req.Prompts)
	for i := range prompts {
		if prompts[i].ID == "" {
			prompts[i].ID = uuid.NewString()
		}
	}

	log := s.log.With("id", resp.ID, "model", req.Model)
	err := s.provider.WithModel(ctx, req.Model, func(scorer decode.Scorer, defaults decode.Config) error {
		cfg := req.Options.Apply(defaults)
		if err := s.limits.checkConfig(cfg); err != nil {
			return err
		}
		if v, ok := scorer.(interface{ Vocab() int }); ok {
			if err := checkPrompts(prompts, v.Vocab()); err != nil {
				return err
			}
		}
		d, err := decode.New(cfg, scorer, decode.WithLogger(log))
		if err != nil {
			return err
		}
		res, err := d.Run(ctx, prompts)
		if err != nil {
			return err
		}
		resp.Config = cfg
		resp.Outputs = res.Outputs
		resp.Steps = res.Steps
		resp.DurationMS = float64(res.Duration.Microseconds()) / 1000
		resp.Status = "completed"
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func checkPrompts(prompts []decode.Prompt, vocab int) error {
	for i, p := range prompts {
		for j, tok := range p.Tokens {
			if tok < 0 || tok >= vocab {
				return newInvalidRequest(fmt.Sprintf("prompts[%d].tokens[%d]: token %d out of range [0,%d)", i, j, tok, vocab))
			}
		}
	}
	return nil
}
