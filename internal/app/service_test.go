package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubService struct {
	name    string
	startFn func(ctx context.Context) error
	stopErr error
	stopped bool
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.startFn != nil {
		return s.startFn(ctx)
	}
	<-ctx.Done()
	return nil
}

func (s *stubService) Stop(context.Context) error {
	s.stopped = true
	return s.stopErr
}

func TestRunnerStopsServicesAndRunsClosers(t *testing.T) {
	failing := &stubService{name: "failing", startFn: func(context.Context) error { return errors.New("boom") }}
	idle := &stubService{name: "idle", stopErr: errors.New("stop failed")}
	closed := 0
	runner := NewRunner(failing, idle)
	runner.closers = []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return errors.New("close failed") },
	}

	err := runner.Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected start error to surface, got %v", err)
	}
	if !failing.stopped || !idle.stopped {
		t.Fatalf("expected every service to be stopped")
	}
	if closed != 2 {
		t.Fatalf("expected both closers to run, got %d", closed)
	}
}

func TestRunnerCanceledContextIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(&stubService{name: "idle"})
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("expected error without services")
	}
}
