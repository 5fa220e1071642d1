package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

func TestDetectFlowEntry(t *testing.T) {
	tests := []struct {
		name      string
		depth     float64
		elapsed   time.Duration
		wantIn    bool
		wantStage string
	}{
		{"cold start", 0, 0, false, StageWarming},
		{"warming up", 20, 5 * time.Minute, false, StageWarming},
		{"entering", 45, 5 * time.Minute, false, StageEntering},
		{"deep by depth", 75, 3 * time.Minute, true, StageDeep},
		{"sustained shallow focus", 40, 20 * time.Minute, true, StageEntering},
		{"boundary depth", 60, 0, true, StageDeep},
		{"boundary duration", 10, 15 * time.Minute, true, StageWarming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := DetectFlowEntry(tt.depth, tt.elapsed)
			if err != nil {
				t.Fatalf("DetectFlowEntry: %v", err)
			}
			if entry.InFlow != tt.wantIn {
				t.Errorf("InFlow = %v, want %v", entry.InFlow, tt.wantIn)
			}
			if entry.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", entry.Stage, tt.wantStage)
			}
		})
	}
}

func TestDetectFlowEntryRejectsBadDepth(t *testing.T) {
	for _, depth := range []float64{-0.1, 100.1} {
		_, err := DetectFlowEntry(depth, time.Minute)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("DetectFlowEntry(%v) error = %v, want ErrInvalidArgument", depth, err)
		}
	}
}
