// Package analysis implements the top-level analysis modes behind the CLI
// commands: live capture and offline file processing.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/engine"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/observability"
)

// RealtimeAnalysis runs the live capture pipeline until interrupted.
func RealtimeAnalysis(settings *conf.Settings) error {
	log := logging.ForService("analysis.realtime")

	var m *observability.Metrics
	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled {
		var err error
		m, err = observability.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		endpoint, err = observability.NewEndpoint(settings, m)
		if err != nil {
			return fmt.Errorf("failed to create metrics endpoint: %w", err)
		}
		endpoint.Start()
		log.Info("metrics endpoint started", "listen", settings.Metrics.Listen)
	}

	var detectionLog *slog.Logger
	if settings.Main.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "detections", slog.LevelInfo)
		if err != nil {
			return fmt.Errorf("failed to open detection log: %w", err)
		}
		defer closeLog() //nolint:errcheck
		detectionLog = fileLogger
	}

	e, err := newEngine(settings, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	source := settings.Audio.Source
	if settings.Audio.TestSignal.Enabled {
		source = "test signal " + settings.Audio.TestSignal.Waveform
	}
	fmt.Printf("Listening on source: %s\n", source)

	interval := time.Duration(settings.Realtime.Interval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("engine shutdown failed: %w", err)
			}
			if endpoint != nil {
				if err := endpoint.Stop(shutdownCtx); err != nil {
					log.Warn("metrics endpoint shutdown failed", "error", err)
				}
			}
			if stats, ok := e.PoolStats(); ok {
				log.Info("final pool statistics",
					"hits", stats.Hits, "misses", stats.Misses,
					"lost", stats.Lost, "hit_rate", fmt.Sprintf("%.4f", stats.HitRate()))
			}
			return nil
		case <-ticker.C:
			start := time.Now()
			result, err := e.Update()
			if err != nil {
				return fmt.Errorf("engine update failed: %w", err)
			}
			reportResult(settings, &result, time.Since(start))
			if detectionLog != nil && result.Pitch.Detected {
				detectionLog.Info("pitch",
					"frequency_hz", result.Pitch.FrequencyHz,
					"clarity", result.Pitch.Clarity,
					"rms", result.Volume.RMS,
					"peak", result.Volume.Peak)
			}
		}
	}
}

func newEngine(settings *conf.Settings, m *observability.Metrics) (*engine.Engine, error) {
	if m != nil {
		return engine.New(settings, m.Engine)
	}
	return engine.New(settings, nil)
}

// reportResult prints detections and surfaced errors to the console.
func reportResult(settings *conf.Settings, result *engine.Result, elapsed time.Duration) {
	log := logging.ForService("analysis.realtime")
	for _, record := range result.Errors {
		log.Warn("capture reported error", "kind", record.Kind, "message", record.Message)
	}

	if !result.Pitch.Detected {
		return
	}

	line := fmt.Sprintf("%s  %7.2f Hz  clarity %.2f  rms %.3f",
		result.Timestamp.Format("15:04:05.000"),
		result.Pitch.FrequencyHz, result.Pitch.Clarity, result.Volume.RMS)
	if settings.Realtime.ProcessingTime {
		line += fmt.Sprintf("  (%v)", elapsed)
	}
	fmt.Println(line)
}
