package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

const maxErrorBodyBytes = 64 << 10

func (c *Client) post(ctx context.Context, path, contentType string, payload []byte) (domain.AnalysisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError("", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError("", fmt.Errorf("analysis request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.AnalysisResult{}, decodeServerError(resp)
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError(
			fmt.Sprintf("invalid analysis response: %v", err),
			fmt.Errorf("decode analysis response: %w", err),
		)
	}
	return result, nil
}

// decodeServerError reads the optional string "detail" field of an error body.
// Non-JSON bodies and non-string details fall back to the generic message.
func decodeServerError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Detail any `json:"detail"`
	}
	detail := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok {
			detail = s
		}
	}

	return &domain.SubmissionError{
		Kind:       domain.ErrServer,
		Message:    detail,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("analysis status: %s", resp.Status),
	}
}
