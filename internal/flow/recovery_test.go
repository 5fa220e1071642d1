package flow

import (
	"errors"
	"testing"

	"github.com/flowlabs/flowd/internal/domain"
)

func TestGenerateRecoveryPath(t *testing.T) {
	steps, err := GenerateRecoveryPath(100)
	if err != nil {
		t.Fatalf("GenerateRecoveryPath: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("len(steps) = %d, want 4", len(steps))
	}
	total := 0
	for i, step := range steps {
		if step.Order != i+1 {
			t.Errorf("step %d order = %d", i, step.Order)
		}
		if step.Minutes < 1 {
			t.Errorf("step %d minutes = %d, want >= 1", i, step.Minutes)
		}
		total += step.Minutes
	}
	// Shares of 23 minutes round to 2+5+7+9.
	if total != 23 {
		t.Errorf("total minutes = %d, want 23", total)
	}
}

func TestGenerateRecoveryPathZeroDepth(t *testing.T) {
	steps, err := GenerateRecoveryPath(0)
	if err != nil {
		t.Fatalf("GenerateRecoveryPath: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected empty path at depth 0, got %d steps", len(steps))
	}
}

func TestGenerateRecoveryPathRejectsBadDepth(t *testing.T) {
	for _, depth := range []float64{-5, 101} {
		_, err := GenerateRecoveryPath(depth)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("GenerateRecoveryPath(%v) error = %v, want ErrInvalidArgument", depth, err)
		}
	}
}
