package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// HTTPReranker scores query/candidate pairs against a cross-encoder model
// served over HTTP. The service accepts a query plus a candidate list and
// returns one raw relevance logit per candidate.
type HTTPReranker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReranker creates a reranker client for the service at baseURL.
func NewHTTPReranker(baseURL string) *HTTPReranker {
	return &HTTPReranker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score in (0, 1) per candidate, in candidate
// order. Raw cross-encoder logits are unbounded, so they pass through a
// sigmoid before being compared against similarity thresholds.
func (r *HTTPReranker) Score(ctx context.Context, query string, candidates []string) ([]float32, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: candidates})
	if err != nil {
		return nil, fmt.Errorf("encoding rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, msg)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if len(decoded.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank response has %d scores, want %d", len(decoded.Scores), len(candidates))
	}

	scores := make([]float32, len(decoded.Scores))
	for i, logit := range decoded.Scores {
		scores[i] = Sigmoid(logit)
	}
	return scores, nil
}

// Sigmoid maps a raw logit into (0, 1).
func Sigmoid(x float64) float32 {
	return float32(1 / (1 + math.Exp(-x)))
}
