package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/camarero-ai/camarero/internal/dotenv"
	"github.com/camarero-ai/camarero/pkg/gateway/config"
	gatewayserver "github.com/camarero-ai/camarero/pkg/gateway/server"
	"github.com/camarero-ai/camarero/pkg/providers/gemini"
	"github.com/camarero-ai/camarero/pkg/providers/openai"
	"github.com/camarero-ai/camarero/pkg/session"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	buildGateway func(context.Context, config.Config, *slog.Logger) (*gatewayserver.Server, *session.Store, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:   config.LoadFromEnv,
		buildGateway: buildGateway,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildGateway constructs the provider clients, store, and pipeline
// behind the HTTP surface.
func buildGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, *session.Store, error) {
	httpClient := gatewayserver.NewHTTPClient(cfg)

	oaCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	oaCfg.BaseURL = cfg.OpenAIBaseURL
	if cfg.CompletionProvider == config.ProviderOpenAI && cfg.CompletionModel != "" {
		oaCfg.CompletionModel = cfg.CompletionModel
	}
	oa := openai.NewWithClient(oaCfg, httpClient)

	var completer session.Completer = oa
	if cfg.CompletionProvider == config.ProviderGemini {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.CompletionModel)
		if err != nil {
			return nil, nil, fmt.Errorf("build gemini completer: %w", err)
		}
		completer = g
	}

	store := session.NewStore(session.StoreConfig{
		SessionTTL:    cfg.SessionTTL,
		MessageTTL:    cfg.MessageTTL,
		SweepInterval: cfg.SweepInterval,
	}, logger)

	pipeline := &session.Pipeline{
		Transcriber: oa,
		Completer:   completer,
		Synthesizer: oa,
		Prompts:     session.DefaultPrompts(),
		Logger:      logger,
		Config: session.PipelineConfig{
			MinAudioBytes: cfg.MinAudioBytes,
			MaxTTSChars:   cfg.MaxTTSChars,
			CallTimeout:   cfg.ProviderCallTimeout,
			ChunkPause:    cfg.ChunkPause,
		},
	}

	return gatewayserver.New(cfg, store, pipeline, logger), store, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildGateway == nil {
		return errors.New("missing buildGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, store, err := deps.buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "completion_provider", cfg.CompletionProvider)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "camarero: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "camarero: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
