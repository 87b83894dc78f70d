package injector

import (
	"context"
	"fmt"
	"time"

	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/probe"
)

// watchGuardrail consumes continuous health-probe results and emits one abort
// reason when the target has been failing without interruption for longer
// than the abort threshold. The channel closes without a value when the
// context ends first
func watchGuardrail(ctx context.Context, healthProbe probe.HealthProbe, abortThreshold time.Duration) <-chan string {
	abort := make(chan string, 1)

	go func() {
		defer close(abort)

		var badSince time.Time
		results := healthProbe.Monitor(ctx)

		for err := range results {
			if err == nil {
				if !badSince.IsZero() {
					log.Infof("[Guardrail]: Target recovered after %v of failing probes", time.Since(badSince).Round(time.Millisecond))
				}
				badSince = time.Time{}
				continue
			}

			if badSince.IsZero() {
				badSince = time.Now()
				log.Warnf("[Guardrail]: Health probe started failing, err: %v", err)
				continue
			}

			if failing := time.Since(badSince); failing > abortThreshold {
				abort <- fmt.Sprintf("health probes failing continuously for %v, beyond the %v abort threshold: %v",
					failing.Round(time.Millisecond), abortThreshold, err)
				return
			}
		}
	}()

	return abort
}
