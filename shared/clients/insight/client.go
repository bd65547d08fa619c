package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"phoenix-insight-engine/shared/config"
	"phoenix-insight-engine/shared/metricsx"
)

type Client struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

type GenerateRequest struct {
	EventID   string          `json:"event_id"`
	StreamID  string          `json:"stream_id"`
	EventType string          `json:"event_type"`
	AppSource string          `json:"app_source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type GenerateResponse struct {
	Insight json.RawMessage `json:"insight"`
	Model   string          `json:"model,omitempty"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.InsightServiceURL == "" {
		return nil, errors.New("INSIGHT_SERVICE_URL is required")
	}
	timeout := time.Duration(cfg.InsightTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.InsightServiceURL,
		timeout:  timeout,
		retryMax: cfg.InsightRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if c == nil || c.http == nil {
		return GenerateResponse{}, errors.New("insight client not initialized")
	}
	if c.breaker.Open() {
		return GenerateResponse{}, errors.New("insight circuit open")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return GenerateResponse{}, err
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if ctx.Err() != nil {
			break
		}
		reqHTTP, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/insights/generate", bytes.NewReader(body))
		if err != nil {
			return GenerateResponse{}, err
		}
		reqHTTP.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(reqHTTP)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = errors.New("insight service error")
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			metricsx.IncGenerateFailure()
			return GenerateResponse{}, errors.New("insight request failed")
		}
		var out GenerateResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncGenerateFailure()
			return GenerateResponse{}, err
		}
		c.breaker.Success()
		metricsx.IncGenerateSuccess()
		metricsx.ObserveGenerateLatency(time.Since(start))
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr == nil {
		lastErr = ctxErr
	}
	if lastErr == nil {
		lastErr = errors.New("insight request failed")
	}
	metricsx.IncGenerateFailure()
	return GenerateResponse{}, lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
