package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/core/ports"
)

const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeServer     = "server_error"
	OutcomeTransport  = "transport_error"
)

type FormControllerOptions struct {
	MaxUploadBytes int64
	Previewer      ports.FilePreviewer
	Observer       ports.SubmissionObserver
}

// FormController owns the state of one submission form. Every mutation is
// serialized by mu; the backend call itself runs without holding it.
type FormController struct {
	api            ports.AnalysisAPI
	storage        ports.ObjectStorage
	previewer      ports.FilePreviewer
	observer       ports.SubmissionObserver
	maxUploadBytes int64

	mu      sync.Mutex
	input   domain.Input
	loading bool
	errMsg  string
	result  *domain.AnalysisResult
}

func NewFormController(api ports.AnalysisAPI, storage ports.ObjectStorage, opts FormControllerOptions) *FormController {
	return &FormController{
		api:            api,
		storage:        storage,
		previewer:      opts.Previewer,
		observer:       opts.Observer,
		maxUploadBytes: opts.MaxUploadBytes,
		input:          domain.EmptyInput(),
	}
}

func (c *FormController) SetText(ctx context.Context, text string) error {
	c.mu.Lock()
	previous, hadFile := c.input.File()
	c.input = domain.TextInput(text)
	c.errMsg = ""
	c.mu.Unlock()

	if hadFile {
		c.release(ctx, previous)
	}
	return nil
}

// SelectFile spools body and makes it the active input. An empty name means
// no file was chosen and leaves the form untouched.
func (c *FormController) SelectFile(ctx context.Context, name, contentType string, body io.Reader) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if body == nil {
		return domain.WrapError(domain.ErrInvalidInput, "select file", errors.New("file body is required"))
	}

	key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(name))
	reader := body
	if c.maxUploadBytes > 0 {
		reader = io.LimitReader(body, c.maxUploadBytes+1)
	}
	size, err := c.storage.Save(ctx, key, reader)
	if err != nil {
		_ = c.storage.Delete(ctx, key)
		return fmt.Errorf("save selected file: %w", err)
	}
	if c.maxUploadBytes > 0 && size > c.maxUploadBytes {
		_ = c.storage.Delete(ctx, key)
		return domain.WrapError(domain.ErrInvalidInput, "select file", fmt.Errorf("file exceeds %d bytes", c.maxUploadBytes))
	}

	ref := domain.FileRef{
		Key:         key,
		Name:        name,
		ContentType: resolveContentType(name, contentType),
		Size:        size,
	}
	if c.previewer != nil {
		preview, err := c.previewer.Preview(ctx, ref)
		if err != nil {
			slog.Debug("file_preview_unavailable", "file", name, "error", err)
		} else {
			ref.Preview = preview
		}
	}

	c.mu.Lock()
	previous, hadFile := c.input.File()
	c.input = domain.FileInput(ref)
	c.errMsg = ""
	c.mu.Unlock()

	if hadFile {
		c.release(ctx, previous)
	}
	return nil
}

func (c *FormController) RemoveFile(ctx context.Context) error {
	c.mu.Lock()
	ref, ok := c.input.File()
	if ok {
		c.input = domain.EmptyInput()
	}
	c.mu.Unlock()

	if ok {
		c.release(ctx, ref)
	}
	return nil
}

// Submit runs one submission cycle and blocks until it settles. The returned
// error is the cycle outcome; it is also reflected in State().Error.
func (c *FormController) Submit(ctx context.Context) error {
	sub, err := c.begin(ctx)
	if err != nil {
		return err
	}
	return c.finish(ctx, sub)
}

// SubmitAsync starts a cycle and returns once the loading state is visible.
// The channel receives the cycle outcome when the request settles.
func (c *FormController) SubmitAsync(ctx context.Context) (<-chan error, error) {
	sub, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- c.finish(ctx, sub)
		close(done)
	}()
	return done, nil
}

func (c *FormController) State() domain.FormState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := domain.FormState{
		Input:     c.input,
		IsLoading: c.loading,
		Error:     c.errMsg,
	}
	if c.result != nil {
		result := *c.result
		state.Result = &result
	}
	return state
}

// Discard releases resources held by the form. The form stays usable.
func (c *FormController) Discard(ctx context.Context) {
	_ = c.RemoveFile(ctx)
}

type submission struct {
	kind    domain.InputKind
	text    string
	file    domain.FileRef
	body    io.ReadCloser
	started time.Time
}

func (c *FormController) begin(ctx context.Context) (*submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading {
		return nil, domain.WrapError(domain.ErrSubmitInFlight, "submit", errors.New("previous request has not settled"))
	}
	c.loading = true
	c.result = nil
	c.errMsg = ""

	sub := &submission{kind: c.input.Kind(), started: time.Now()}
	if ref, ok := c.input.File(); ok {
		// Opened under the lock so a concurrent RemoveFile cannot delete it first.
		body, err := c.storage.Open(ctx, ref.Key)
		if err != nil {
			err = domain.NewTransportError("", fmt.Errorf("open selected file: %w", err))
			c.settleLocked(sub, domain.AnalysisResult{}, err)
			return nil, err
		}
		sub.file = ref
		sub.body = body
		return sub, nil
	}
	if text, ok := c.input.Text(); ok && strings.TrimSpace(text) != "" {
		sub.text = text
		return sub, nil
	}

	err := domain.NewValidationError()
	c.settleLocked(sub, domain.AnalysisResult{}, err)
	return nil, err
}

func (c *FormController) finish(ctx context.Context, sub *submission) error {
	var (
		result domain.AnalysisResult
		err    error
	)
	switch sub.kind {
	case domain.InputFile:
		result, err = c.api.AnalyzeFile(ctx, sub.file, sub.body)
		_ = sub.body.Close()
	default:
		result, err = c.api.AnalyzeText(ctx, sub.text)
	}
	if err != nil {
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = domain.NewTransportError("", err)
		}
	}

	c.mu.Lock()
	c.settleLocked(sub, result, err)
	c.mu.Unlock()
	return err
}

func (c *FormController) settleLocked(sub *submission, result domain.AnalysisResult, err error) {
	if err != nil {
		c.errMsg = domain.UserMessage(err)
	} else {
		c.result = &result
	}
	c.loading = false

	if c.observer != nil {
		c.observer.ObserveSubmission(sub.kind, outcomeOf(err), time.Since(sub.started))
	}
}

func (c *FormController) release(ctx context.Context, ref domain.FileRef) {
	if ref.Key == "" {
		return
	}
	if err := c.storage.Delete(ctx, ref.Key); err != nil {
		slog.Warn("release_selected_file_failed", "file", ref.Name, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case domain.IsKind(err, domain.ErrValidation):
		return OutcomeValidation
	case domain.IsKind(err, domain.ErrServer):
		return OutcomeServer
	default:
		return OutcomeTransport
	}
}

func resolveContentType(name, contentType string) string {
	if ct := strings.TrimSpace(contentType); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "upload.bin"
	}
	return base
}
