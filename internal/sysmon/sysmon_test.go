package sysmon

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/frc3512/livegrapher-host/internal/metrics"
)

func TestNew_SamplesCurrentProcess(t *testing.T) {
	m := metrics.New()
	mon, err := New(m, zerolog.Nop(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon.sample()

	if got := testutil.ToFloat64(m.GoroutinesActive); got <= 0 {
		t.Fatalf("expected goroutines gauge to be set to a positive value, got %v", got)
	}
}

func TestStartStop_RunsAtLeastOneSample(t *testing.T) {
	m := metrics.New()
	mon, err := New(m, zerolog.Nop(), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mon.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	mon.Stop()

	if got := testutil.ToFloat64(m.GoroutinesActive); got <= 0 {
		t.Fatalf("expected at least one sample to set the goroutines gauge, got %v", got)
	}
}
