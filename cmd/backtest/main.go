package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"backtest_go/internal/app"
	"backtest_go/internal/engine"
	"backtest_go/internal/report"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Cancellation covers the loading phase; a running replay
	// finishes its current step set regardless.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Run the replay
	result := bootstrap.Engine.Run(ctx)

	// 4. Persist report artifacts
	writer := report.NewWriter(bootstrap.Config.Run.OutputDir)
	paths, err := writer.Write(result)
	if err != nil {
		slog.Error("writing report", slog.Any("error", err))
	}
	for _, p := range paths {
		slog.Info("📄 Report written", slog.String("path", p))
	}

	os.Stdout.WriteString(report.Render(result))

	if result.FinalState != engine.StateCompleted {
		os.Exit(1)
	}
}
