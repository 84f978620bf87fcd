package app

import (
	"context"
	"testing"
	"time"

	"multicamera/internal/config"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Camera.Width, cfg.Camera.Height = 32, 18
	cfg.Timelapse.Enabled = true
	cfg.Timelapse.CaptureInterval = 20 * time.Millisecond
	cfg.Timelapse.OutputDir = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.WaitMode = "spin"

	if err := Run(context.Background(), cfg); err == nil {
		t.Error("Expected error for invalid wait mode")
	}
}
