package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

// AnalysisAPI calls the external email analysis backend.
type AnalysisAPI interface {
	AnalyzeText(ctx context.Context, text string) (domain.AnalysisResult, error)
	AnalyzeFile(ctx context.Context, ref domain.FileRef, body io.Reader) (domain.AnalysisResult, error)
}

// ObjectStorage spools selected files until they are submitted or discarded.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// FilePreviewer extracts a short human-readable excerpt of a spooled file.
type FilePreviewer interface {
	Preview(ctx context.Context, ref domain.FileRef) (string, error)
}

// SubmissionObserver receives one call per settled submission cycle.
type SubmissionObserver interface {
	ObserveSubmission(input domain.InputKind, outcome string, duration time.Duration)
}
