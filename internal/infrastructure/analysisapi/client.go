package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/resilience"
)

const (
	DefaultTextPath = "/api/process-email"
	DefaultFilePath = "/api/upload-file"

	OperationText = "analyze_text"
	OperationFile = "analyze_file"

	fileField = "file"
)

type Config struct {
	BaseURL  string
	TextPath string
	FilePath string
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration
}

// Client talks to the email analysis backend.
type Client struct {
	baseURL    string
	textPath   string
	filePath   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.Config{})
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		textPath:   pathOrDefault(cfg.TextPath, DefaultTextPath),
		filePath:   pathOrDefault(cfg.FilePath, DefaultFilePath),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
	}
}

type textRequest struct {
	EmailText string `json:"email_text"`
}

func (c *Client) AnalyzeText(ctx context.Context, text string) (domain.AnalysisResult, error) {
	payload, err := json.Marshal(textRequest{EmailText: text})
	if err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError("", fmt.Errorf("marshal %s request: %w", OperationText, err))
	}

	result, err := resilience.Call(ctx, c.executor, OperationText, func(callCtx context.Context) (domain.AnalysisResult, error) {
		return c.post(callCtx, c.textPath, "application/json", payload)
	}, classifyError)
	return result, normalizeError(OperationText, err)
}

func (c *Client) AnalyzeFile(ctx context.Context, ref domain.FileRef, body io.Reader) (domain.AnalysisResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError("", fmt.Errorf("read selected file: %w", err))
	}
	contentType, payload, err := buildMultipart(ref, data)
	if err != nil {
		return domain.AnalysisResult{}, domain.NewTransportError("", fmt.Errorf("build %s request: %w", OperationFile, err))
	}

	result, err := resilience.Call(ctx, c.executor, OperationFile, func(callCtx context.Context) (domain.AnalysisResult, error) {
		return c.post(callCtx, c.filePath, contentType, payload)
	}, classifyError)
	return result, normalizeError(OperationFile, err)
}

func (c *Client) BreakerState(operation string) string {
	return c.executor.BreakerState(operation)
}

// BreakerStates reports the breaker state of both backend operations, keyed
// by operation name.
func (c *Client) BreakerStates() map[string]string {
	return map[string]string{
		OperationText: c.BreakerState(OperationText),
		OperationFile: c.BreakerState(OperationFile),
	}
}

func buildMultipart(ref domain.FileRef, data []byte) (string, []byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	contentType := strings.TrimSpace(ref.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(ref.Name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(data); err != nil {
		return "", nil, err
	}
	if err := writer.Close(); err != nil {
		return "", nil, err
	}
	return writer.FormDataContentType(), buf.Bytes(), nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}

func pathOrDefault(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
