package flow

import (
	"math"

	"github.com/flowlabs/flowd/internal/domain"
)

// RecoveryStep is one step of a guided path back into flow.
type RecoveryStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Minutes     int    `json:"minutes"`
}

// Relative shares of the total recovery time assigned to each step.
var recoverySteps = []struct {
	description string
	share       float64
}{
	{"Write down exactly where you stopped and what comes next", 0.10},
	{"Close the interrupting context before touching your work", 0.20},
	{"Re-read your last output to reload working memory", 0.30},
	{"Resume with the smallest concrete action you noted", 0.40},
}

// GenerateRecoveryPath builds an ordered list of recovery steps sized to the
// flow depth at the moment of interruption. A depth of zero means nothing
// was lost and yields an empty path.
func GenerateRecoveryPath(depth float64) ([]RecoveryStep, error) {
	if depth < 0 || depth > 100 {
		return nil, domain.ErrInvalidArgument
	}

	total := baseRecoveryMinutes * depth / 100
	if total == 0 {
		return []RecoveryStep{}, nil
	}

	steps := make([]RecoveryStep, 0, len(recoverySteps))
	for i, s := range recoverySteps {
		minutes := int(math.Round(total * s.share))
		if minutes < 1 {
			minutes = 1
		}
		steps = append(steps, RecoveryStep{
			Order:       i + 1,
			Description: s.description,
			Minutes:     minutes,
		})
	}
	return steps, nil
}
