package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// rerankRequest/rerankResponse mirror the teacher's root rerank.go payload
// shape for a llama.cpp-compatible (or hosted) reranking endpoint.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// httpReranker calls an HTTP reranking endpoint and reorders items by the
// returned relevance scores, grounded on the teacher's reRankChunks.
type httpReranker struct {
	host      string
	apiKey    string
	model     string
	useBearer bool
	client    *http.Client
}

func newHTTPReranker(host, apiKey, model string, useBearer bool) *httpReranker {
	return &httpReranker{host: host, apiKey: apiKey, model: model, useBearer: useBearer, client: &http.Client{}}
}

func (r *httpReranker) Rerank(ctx context.Context, query string, items []Item) ([]Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	documents := make([]string, len(items))
	for i, it := range items {
		documents[i] = it.Text
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		TopN:      len(items),
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		if r.useBearer {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		} else {
			req.Header.Set("X-API-Key", r.apiKey)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rankResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make(map[int]float64, len(rankResp.Results))
	for _, res := range rankResp.Results {
		scores[res.Index] = res.RelevanceScore
	}

	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
