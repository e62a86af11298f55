package ports

import (
	"context"
	"io"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

// FormService is the inbound contract of one submission form.
type FormService interface {
	SetText(ctx context.Context, text string) error
	SelectFile(ctx context.Context, name, contentType string, body io.Reader) error
	RemoveFile(ctx context.Context) error
	Submit(ctx context.Context) error
	SubmitAsync(ctx context.Context) (<-chan error, error)
	State() domain.FormState
}
