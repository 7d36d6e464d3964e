// Package embedding implements the embedding layer of §4.5/§4.6's upstream
// half: a provider-pluggable HTTP client conforming to §6's embedding
// provider contract, and the Service that dedups by content hash, caches,
// batches, and normalises on top of it.
//
// Grounded on the teacher's internal/embeddings/{client.go,batcher.go}
// (MRL-style truncation, L2 normalize, bounded-concurrency batch
// generation), generalized from a single hardcoded Ollama client to the
// named-provider-registry model §4.5/§9 describe. Libraries:
// github.com/pkoukk/tiktoken-go for input-length budgeting,
// golang.org/x/sync/singleflight for in-flight request dedup.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
)

// Provider is §4.5's provider contract: name, supported models, batch
// generation, and a health check. Providers own their authentication and
// rate limiting; the Service never retries a provider's non-recoverable
// errors (auth, quota).
type Provider interface {
	Name() string
	SupportedModels() []string
	GenerateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
	HealthCheck(ctx context.Context) error
}

// HTTPProviderConfig configures one HTTPProvider instance.
type HTTPProviderConfig struct {
	Name           string
	Endpoint       string
	APIKey         string
	Models         map[string]int // model name -> dimension
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// HTTPProvider implements §6's wire contract: POST endpoint with
// {input:[text], model, encoding_format:"float"}, bearer auth, response
// {data:[{embedding:[...]}]}.
type HTTPProvider struct {
	cfg    HTTPProviderConfig
	client *http.Client
}

// NewHTTPProvider builds a provider bound to one HTTP embedding endpoint.
// Grounded on the teacher's Client's connection-pooled http.Transport.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

func (p *HTTPProvider) SupportedModels() []string {
	models := make([]string, 0, len(p.cfg.Models))
	for m := range p.cfg.Models {
		models = append(models, m)
	}
	return models
}

type httpEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type httpEmbedItem struct {
	Embedding []float32 `json:"embedding"`
}

type httpEmbedResponse struct {
	Data []httpEmbedItem `json:"data"`
}

// GenerateEmbeddings issues one POST per call, carrying the full batch in
// a single request per §6's contract. Network/5xx/timeout failures are
// classified NetworkError (recoverable); 4xx auth/quota responses are
// ConfigError (fatal) so the Service never retries them.
func (p *HTTPProvider) GenerateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	dim, ok := p.cfg.Models[model]
	if !ok {
		return nil, apperrors.New(apperrors.ConfigError, "ERR_EMBED_MODEL", fmt.Sprintf("unregistered model %q for provider %q", model, p.cfg.Name), nil)
	}

	reqBody, err := json.Marshal(httpEmbedRequest{Input: texts, Model: model, EncodingFormat: "float"})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "ERR_EMBED_MARSHAL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigError, "ERR_EMBED_REQUEST", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "ERR_EMBED_TRANSPORT", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusPaymentRequired {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ConfigError, "ERR_EMBED_AUTH", fmt.Sprintf("provider %s rejected credentials: %s", p.cfg.Name, string(body)), nil)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.NetworkError, "ERR_EMBED_SERVER", fmt.Sprintf("provider %s returned %d: %s", p.cfg.Name, resp.StatusCode, string(body)), nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ConfigError, "ERR_EMBED_STATUS", fmt.Sprintf("provider %s returned %d: %s", p.cfg.Name, resp.StatusCode, string(body)), nil)
	}

	var parsed httpEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.ParseError, "ERR_EMBED_DECODE", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, apperrors.Newf(apperrors.ParseError, "ERR_EMBED_COUNT", "expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		if len(item.Embedding) != dim {
			return nil, apperrors.Newf(apperrors.ParseError, "ERR_EMBED_DIM", "model %s declares dimension %d, got %d", model, dim, len(item.Embedding))
		}
		out[i] = item.Embedding
	}
	return out, nil
}

func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for model := range p.cfg.Models {
		_, err := p.GenerateEmbeddings(ctx, []string{"health check"}, model)
		return err
	}
	return apperrors.New(apperrors.ConfigError, "ERR_EMBED_NOMODEL", "provider has no registered models", nil)
}

// Normalize L2-normalizes a vector in place's copy, matching the teacher's
// normalize() post-MRL-slice step.
func Normalize(vec []float32) []float32 {
	var sumSq float32
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return vec
	}
	mag := float32(1.0 / sqrt(float64(sumSq)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * mag
	}
	return out
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 12; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
