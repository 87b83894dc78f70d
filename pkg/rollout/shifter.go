package rollout

import (
	"context"

	"github.com/litmusops/resilience-gate/pkg/log"
)

// TrafficShifter moves live traffic onto the deployment candidate and back.
// The deployment layer supplies the real implementation; the no-op shifter
// serves dry runs and tests
type TrafficShifter interface {
	Shift(ctx context.Context, percent int) error
	Revert(ctx context.Context) error
}

// NoopShifter only logs the requested traffic moves
type NoopShifter struct{}

func (NoopShifter) Shift(ctx context.Context, percent int) error {
	log.Infof("[Rollout]: Shifting %v%% of the traffic to the candidate", percent)
	return nil
}

func (NoopShifter) Revert(ctx context.Context) error {
	log.Info("[Rollout]: Reverting all traffic to the last known-good version")
	return nil
}
