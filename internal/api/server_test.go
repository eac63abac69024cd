package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logger"
	"github.com/samcharles93/mantle-decode/internal/table"
)

func intp(v int) *int { return &v }

// writeTestModel packs a five-token chain 0 -> 3 -> 4 -> eos.
func writeTestModel(t *testing.T, dir, name string) string {
	t.Helper()
	spec := &table.Spec{
		Vocab:        5,
		BOS:          intp(0),
		EOS:          intp(1),
		UNK:          intp(2),
		DefaultLogit: float32(math.Inf(-1)),
		Transitions: []table.Transition{
			{From: 0, To: 3, Logit: 3},
			{From: 0, To: 4, Logit: 1},
			{From: 3, To: 4, Logit: 2},
			{From: 3, To: 1, Logit: 0},
			{From: 4, To: 1, Logit: 5},
			{From: 4, To: 3, Logit: 0},
		},
	}
	path := filepath.Join(dir, name+ModelExt)
	require.NoError(t, table.PackFile(spec, path))
	return path
}

func newTestEcho(t *testing.T, provider ModelProvider) *echo.Echo {
	t.Helper()
	return newLimitedEcho(t, provider, DefaultLimits())
}

func newLimitedEcho(t *testing.T, provider ModelProvider, limits Limits) *echo.Echo {
	t.Helper()
	service := NewDecodeService(provider, limits, logger.Discard())
	server := NewServer(NewResultStore(0), service)
	e := echo.New()
	server.Register(e)
	return e
}

func newModelEcho(t *testing.T) (*echo.Echo, *CachedModelProvider) {
	t.Helper()
	dir := t.TempDir()
	writeTestModel(t, dir, "chain")
	provider := NewCachedModelProvider(ModelProviderConfig{
		ModelsPath: dir,
		Defaults:   decode.DefaultConfig(),
	})
	t.Cleanup(func() { _ = provider.Close() })
	return newTestEcho(t, provider), provider
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestDecodeLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newModelEcho(t)
	body := `{"model":"chain","prompts":[{"id":"p1","tokens":[0]},{"tokens":[]}],
		"decoding_strategy":"beam_search","beam_size":2,"min_dec_len":0,"max_dec_len":8}`
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decodeBody[DecodeResponse](t, rec)
	assert.True(t, strings.HasPrefix(created.ID, "dec_"), created.ID)
	assert.Equal(t, "completed", created.Status)
	assert.Equal(t, "decode", created.Object)
	assert.Equal(t, 1, created.Config.EOSID)
	assert.Equal(t, 2, created.Config.BeamSize)
	require.Len(t, created.Outputs, 2)
	assert.Equal(t, "p1", created.Outputs[0].ID)
	assert.NotEmpty(t, created.Outputs[1].ID)

	best := created.Outputs[0].Hypotheses[0]
	assert.Equal(t, []int{3, 4}, best.Tokens)
	assert.Equal(t, decode.ReasonEOS, best.Reason)

	getRec := doJSON(t, e, http.MethodGet, "/v1/decode/"+created.ID, "")
	assert.Equal(t, http.StatusOK, getRec.Code, getRec.Body.String())

	delRec := doJSON(t, e, http.MethodDelete, "/v1/decode/"+created.ID, "")
	require.Equal(t, http.StatusOK, delRec.Code, delRec.Body.String())
	assert.Contains(t, delRec.Body.String(), `"deleted":true`)

	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodGet, "/v1/decode/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodDelete, "/v1/decode/"+created.ID, "").Code)
}

func TestDecodeNotStored(t *testing.T) {
	t.Parallel()

	e, _ := newModelEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", `{"prompts":[{"tokens":[0]}],"store":false,"seed":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decodeBody[DecodeResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodGet, "/v1/decode/"+created.ID, "").Code)
}

func TestDecodeValidationErrors(t *testing.T) {
	t.Parallel()

	e, _ := newModelEcho(t)
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"bad json", `{"prompts":`, http.StatusBadRequest, "invalid_request_error"},
		{"unknown field", `{"prompts":[{"tokens":[0]}],"beam":3}`, http.StatusBadRequest, "beam"},
		{"no prompts", `{"prompts":[]}`, http.StatusBadRequest, "at least one prompt"},
		{"temperature", `{"prompts":[{"tokens":[0]}],"temperature":0}`, http.StatusBadRequest, `"param":"temperature"`},
		{"strategy", `{"prompts":[{"tokens":[0]}],"decoding_strategy":"greedy"}`, http.StatusBadRequest, "unknown decoding strategy"},
		{"token range", `{"prompts":[{"tokens":[0,9]}]}`, http.StatusBadRequest, "out of range"},
		{"unknown model", `{"model":"nope","prompts":[{"tokens":[0]}]}`, http.StatusNotFound, "not_found_error"},
		{"samples with beam", `{"prompts":[{"tokens":[0]}],"decoding_strategy":"beam_search","num_samples":3}`, http.StatusBadRequest, "num_samples"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/decode", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestDecodeRequestLimits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestModel(t, dir, "chain")
	provider := NewCachedModelProvider(ModelProviderConfig{ModelsPath: dir, Defaults: decode.DefaultConfig()})
	t.Cleanup(func() { _ = provider.Close() })
	e := newLimitedEcho(t, provider, Limits{MaxPrompts: 2, MaxDecLen: 64, MaxBeamSize: 4, MaxNumSamples: 3})

	tests := []struct {
		name  string
		body  string
		param string
	}{
		{"prompts", `{"prompts":[{"tokens":[0]},{"tokens":[0]},{"tokens":[0]}]}`, "prompts"},
		{"max_dec_len", `{"prompts":[{"tokens":[0]}],"max_dec_len":1000000}`, "max_dec_len"},
		{"beam_size", `{"prompts":[{"tokens":[0]}],"decoding_strategy":"beam_search","beam_size":5000}`, "beam_size"},
		{"num_samples", `{"prompts":[{"tokens":[0]}],"num_samples":4}`, "num_samples"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/decode", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tc.param, resp.Error.Param)
			assert.Contains(t, resp.Error.Message, "server limit")
		})
	}

	// beam_size beyond the cap is ignored by sampling strategies.
	rec := doJSON(t, e, http.MethodPost, "/v1/decode",
		`{"prompts":[{"tokens":[0]}],"decoding_strategy":"topk_sampling","beam_size":5000,"max_dec_len":16,"num_samples":3}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestZeroLimitsAreUnbounded(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Limits{}.checkPrompts(1<<20))
	cfg := decode.DefaultConfig()
	cfg.MaxDecLen = 1 << 20
	cfg.NumSamples = 1 << 10
	assert.NoError(t, Limits{}.checkConfig(cfg))
	assert.ErrorIs(t, DefaultLimits().checkConfig(cfg), ErrInvalidRequest)
}

type failingProvider struct {
	err error
}

func (p failingProvider) WithModel(ctx context.Context, _ string, fn func(decode.Scorer, decode.Config) error) error {
	if p.err != nil {
		return p.err
	}
	scorer := decode.ScorerFunc(func(context.Context, *decode.StepInput) (*decode.StepOutput, error) {
		return nil, errors.New("backend exploded")
	})
	return fn(scorer, decode.DefaultConfig())
}

func (p failingProvider) ListModels() ([]ModelInfo, error) {
	return nil, p.err
}

func TestDecodeScorerFailure(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, failingProvider{})
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", `{"prompts":[{"tokens":[0]}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "backend exploded")

	e = newTestEcho(t, failingProvider{err: errors.New("disk gone")})
	rec = doJSON(t, e, http.MethodGet, "/v1/models", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListModels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestModel(t, dir, "beta")
	writeTestModel(t, dir, "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	provider := NewCachedModelProvider(ModelProviderConfig{
		ModelsPath:       dir,
		DefaultModelPath: "/models/custom.bgt",
	})
	e := newTestEcho(t, provider)

	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody[ModelList](t, rec)
	var ids []string
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, "list", list.Object)
	assert.Equal(t, []string{"custom", "alpha", "beta"}, ids)
}

func TestResolveModelPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	only := writeTestModel(t, dir, "only")

	p := NewCachedModelProvider(ModelProviderConfig{ModelsPath: dir})
	got, err := p.resolveModelPath("")
	require.NoError(t, err)
	assert.Equal(t, only, got)
	got, err = p.resolveModelPath("only")
	require.NoError(t, err)
	assert.Equal(t, only, got)

	writeTestModel(t, dir, "other")
	_, err = p.resolveModelPath("")
	assert.ErrorIs(t, err, ErrInvalidRequest, "two models and no id is ambiguous")
	_, err = p.resolveModelPath("missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	empty := NewCachedModelProvider(ModelProviderConfig{ModelsPath: t.TempDir()})
	_, err = empty.resolveModelPath("")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestProviderCachesModels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeTestModel(t, dir, "chain")
	opens := 0
	p := NewCachedModelProvider(ModelProviderConfig{
		DefaultModelPath: path,
		Defaults:         decode.DefaultConfig(),
		Open: func(path string) (*table.Model, error) {
			opens++
			return table.Open(path)
		},
	})
	defer func() { _ = p.Close() }()

	for range 3 {
		err := p.WithModel(context.Background(), "", func(_ decode.Scorer, defaults decode.Config) error {
			assert.Equal(t, 1, defaults.EOSID)
			assert.Equal(t, -1, defaults.MaskID)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, opens)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	e, _ := newModelEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", `{"prompts":[{"tokens":[0]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Stored)
	assert.NotEmpty(t, health.Version.Version)

	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "decode_steps_total")
}

func TestResultStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewResultStore(2)
	s.Put(&DecodeResponse{ID: "a"})
	s.Put(&DecodeResponse{ID: "b"})
	s.Put(&DecodeResponse{ID: "c"})
	_, ok := s.Get("a")
	assert.False(t, ok, "oldest result should be evicted")
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))

	s.Put(&DecodeResponse{ID: "d"})
	s.Put(&DecodeResponse{ID: "e"})
	_, ok = s.Get("c")
	assert.False(t, ok, "c should be evicted after b was deleted")
}
