package flow

import (
	"math"

	"github.com/flowlabs/flowd/internal/domain"
)

// baseRecoveryMinutes is the average context-switch recovery time at full
// flow depth.
const baseRecoveryMinutes = 23.0

// InterruptionCost is the monetized cost of breaking focus right now.
type InterruptionCost struct {
	RecoveryMinutes         float64 `json:"recovery_minutes"`
	DollarCost              int     `json:"dollar_cost"`
	ProductivityLossMinutes int     `json:"productivity_loss_minutes"`
}

// EstimateInterruptionCost computes the recovery time and dollar cost of an
// interruption at the given flow depth. Pure function, no I/O.
//
// Recovery scales linearly with depth; productivity loss models recovery
// plus ramp-back-up time as a 2x multiplier.
func EstimateInterruptionCost(depth, hourlyRate float64) (InterruptionCost, error) {
	if depth < 0 || depth > 100 || math.IsNaN(depth) {
		return InterruptionCost{}, domain.ErrInvalidArgument
	}
	if hourlyRate <= 0 || math.IsNaN(hourlyRate) || math.IsInf(hourlyRate, 0) {
		return InterruptionCost{}, domain.ErrInvalidArgument
	}

	recovery := baseRecoveryMinutes * depth / 100
	return InterruptionCost{
		RecoveryMinutes:         recovery,
		DollarCost:              int(math.Round(recovery / 60 * hourlyRate)),
		ProductivityLossMinutes: int(math.Round(recovery * 2)),
	}, nil
}
