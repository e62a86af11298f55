package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/email-analyzer/internal/config"
	"github.com/kirillkom/email-analyzer/internal/core/usecase"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/analysisapi"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/extractor/preview"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/email-analyzer/internal/observability/metrics"
)

const serviceName = "email-analyzer"

type App struct {
	Config config.Config

	Metrics  *metrics.HTTPServerMetrics
	Analysis *analysisapi.Client
	Sessions *usecase.SessionRegistry

	closeFn func(context.Context)
}

func New(_ context.Context, cfg config.Config) (*App, error) {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)

	policy := resilience.AnalysisPolicy(cfg.AnalysisRetryMaxAttempts, cfg.AnalysisBreakerEnabled)
	executor := resilience.NewExecutor(policy, resilience.WithStateChangeHook(func(operation, _, to string) {
		httpMetrics.SetBreakerState(operation, to)
	}))

	analysis := analysisapi.New(analysisapi.Config{
		BaseURL:  cfg.AnalysisAPIURL,
		TextPath: cfg.AnalysisTextPath,
		FilePath: cfg.AnalysisFilePath,
		Timeout:  time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second,
	}, executor)
	previewer := preview.NewExtractor(storage, cfg.PreviewChars)

	sessions := usecase.NewSessionRegistry(
		time.Duration(cfg.SessionTTLMinutes)*time.Minute,
		func() *usecase.FormController {
			return usecase.NewFormController(analysis, storage, usecase.FormControllerOptions{
				MaxUploadBytes: cfg.MaxUploadBytes,
				Previewer:      previewer,
				Observer:       httpMetrics,
			})
		},
		usecase.WithActiveSessionsHook(httpMetrics.SetActiveSessions),
	)

	return &App{
		Config:   cfg,
		Metrics:  httpMetrics,
		Analysis: analysis,
		Sessions: sessions,

		closeFn: func(ctx context.Context) {
			sessions.Close(ctx)
		},
	}, nil
}

// SweepInterval is how often expired sessions are collected.
func (a *App) SweepInterval() time.Duration {
	return time.Duration(a.Config.SessionSweepSeconds) * time.Second
}

func (a *App) Close(ctx context.Context) {
	if a.closeFn != nil {
		a.closeFn(ctx)
	}
}
