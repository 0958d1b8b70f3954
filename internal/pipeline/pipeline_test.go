package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount int
}

func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

func (m *mockStep) Name() string {
	return m.name
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to be false")
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if p := New(WithContinueOnError(true)); !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "step-1"})
	p.AddSteps(&mockStep{name: "step-2"}, &mockStep{name: "step-3"})

	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps, got %d", p.StepCount())
	}
	want := []string{"step-1", "step-2", "step-3"}
	if got := p.StepNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("StepNames() = %v, want %v", got, want)
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"), record("c"))
		run := NewRun(t.TempDir(), nil, false)

		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
			t.Errorf("execution order = %v", order)
		}
		if !reflect.DeepEqual(run.PerformedSteps, []string{"a", "b", "c"}) {
			t.Errorf("PerformedSteps = %v", run.PerformedSteps)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		failing := &mockStep{name: "fail", doFunc: func(context.Context, *Run) error { return errBoom }}
		after := &mockStep{name: "after"}

		p := New()
		p.AddSteps(failing, after)
		run := NewRun(t.TempDir(), nil, false)

		if err := p.Execute(context.Background(), run); !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if after.callCount != 0 {
			t.Error("step after the failure should not run")
		}
		if !errors.Is(run.Err, errBoom) {
			t.Errorf("run.Err = %v", run.Err)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		failing := &mockStep{name: "fail", doFunc: func(context.Context, *Run) error { return errBoom }}
		after := &mockStep{name: "after"}

		p := New(WithContinueOnError(true))
		p.AddSteps(failing, after)
		run := NewRun(t.TempDir(), nil, false)

		if err := p.Execute(context.Background(), run); !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if after.callCount != 1 {
			t.Error("step after the failure should run")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)
		run := NewRun(t.TempDir(), nil, false)

		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not run after cancellation")
		}
	})
}
