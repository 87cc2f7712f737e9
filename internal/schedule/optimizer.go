package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Optimizer orders tasks. Its objective is opaque to this package.
type Optimizer interface {
	Optimize(ctx context.Context, req *Request) ([]ResultEntry, error)
}

// OptimizerError is an error payload returned by the optimizer.
type OptimizerError struct {
	StatusCode int
	Message    string
}

func (e *OptimizerError) Error() string {
	return fmt.Sprintf("optimizer error (status %d): %s", e.StatusCode, e.Message)
}

// HTTPOptimizer posts the request as JSON. The response body is either an
// array of entries or an object carrying "error" (or "schedule").
type HTTPOptimizer struct {
	url    string
	client *http.Client
}

func NewHTTPOptimizer(url string, timeout time.Duration) *HTTPOptimizer {
	return &HTTPOptimizer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type optimizerObject struct {
	Schedule []ResultEntry `json:"schedule"`
	Error    string        `json:"error"`
}

const maxOptimizerResponse = 4 << 20

func (o *HTTPOptimizer) Optimize(ctx context.Context, req *Request) ([]ResultEntry, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal optimizer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build optimizer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call optimizer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOptimizerResponse))
	if err != nil {
		return nil, fmt.Errorf("read optimizer response: %w", err)
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' && resp.StatusCode < 300 {
		var entries []ResultEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode optimizer response: %w", err)
		}
		return entries, nil
	}

	var obj optimizerObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &OptimizerError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	if obj.Error != "" || resp.StatusCode >= 300 {
		msg := obj.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &OptimizerError{StatusCode: resp.StatusCode, Message: msg}
	}
	return obj.Schedule, nil
}
