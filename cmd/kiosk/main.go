// Command kiosk is a terminal voice client: it captures speech through
// ffmpeg, runs the turn cycle against a running gateway, and plays replies
// through ffplay. Press Ctrl+C to quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/camarero-ai/camarero/internal/dotenv"
	"github.com/camarero-ai/camarero/pkg/client"
	"github.com/camarero-ai/camarero/pkg/core/live"
	"github.com/camarero-ai/camarero/pkg/session"
)

func run(ctx context.Context) error {
	serverURL := flag.String("server", "http://127.0.0.1:8080", "gateway base URL")
	clientID := flag.String("client-id", "", "session client id (random when empty)")
	language := flag.String("language", "es", "conversation language (es, en, fr, it)")
	sensitivity := flag.Int("sensitivity", 5, "voice sensitivity, 1-10")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	id := *clientID
	if id == "" {
		id = "kiosk_" + uuid.NewString()[:8]
	}

	api := client.New(*serverURL, id,
		client.WithLanguage(*language),
		client.WithLogger(logger),
	)
	if err := api.Ping(ctx); err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", *serverURL, err)
	}

	monCfg := live.DefaultMonitorConfig()
	monCfg.Sensitivity = *sensitivity
	monitor := live.NewLevelMonitor(monCfg)

	mic, err := newFFmpegMic(monitor)
	if err != nil {
		return err
	}
	// The mic stream runs for the whole session: the monitor needs samples
	// during playback to detect the user cutting in, not just while an
	// utterance capture is open.
	if err := mic.Run(); err != nil {
		return err
	}
	defer mic.Close()

	player, err := newFFplayPlayer()
	if err != nil {
		return err
	}

	recorder := live.NewRecorder(live.DefaultRecorderConfig(), mic)

	ctlCfg := live.DefaultControllerConfig()
	ctlCfg.Language = *language
	controller := live.NewController(ctlCfg, api, recorder, monitor, player, logger)
	controller.OnEvent = func(msg session.Message) {
		switch msg.Event {
		case session.EventTranscription:
			if text, ok := msg.Data["text"].(string); ok {
				fmt.Printf("you:     %s\n", text)
			}
		case session.EventResponseChunk:
			if text, ok := msg.Data["text"].(string); ok {
				fmt.Printf("waiter:  %s\n", text)
			}
		case session.EventInterrupted:
			fmt.Println("-- interrupted --")
		case session.EventError:
			fmt.Printf("error: %v\n", msg.Data["message"])
		}
	}

	fmt.Printf("connected as %s, speak when ready\n", id)
	controller.Start(ctx)
	defer controller.Stop()

	<-ctx.Done()
	fmt.Println("\nbye")
	return nil
}

func main() {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "kiosk: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "kiosk: %v\n", err)
		os.Exit(1)
	}

	// Give in-flight playback a beat to stop cleanly.
	time.Sleep(100 * time.Millisecond)
}
