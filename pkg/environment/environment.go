package environment

import (
	"os"
	"strconv"

	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/litmusops/resilience-gate/pkg/utils/stringutils"
)

// GetENV fetches all the gate tunables from the runner environment
func GetENV(gateDetails *types.GateDetails) {
	gateDetails.RunID = Getenv("GATE_RUN_ID", "gate-"+stringutils.GetRunID())
	gateDetails.TargetName = Getenv("TARGET_NAME", "")
	gateDetails.TargetBaseURL = Getenv("TARGET_BASE_URL", "")
	gateDetails.Environment = Getenv("GATE_ENVIRONMENT", "staging")
	gateDetails.Timeout, _ = strconv.Atoi(Getenv("STATUS_CHECK_TIMEOUT", "180"))
	gateDetails.Delay, _ = strconv.Atoi(Getenv("STATUS_CHECK_DELAY", "2"))
	gateDetails.AbortThreshold, _ = strconv.Atoi(Getenv("GUARDRAIL_ABORT_THRESHOLD", "30"))
	gateDetails.CooldownSeconds, _ = strconv.Atoi(Getenv("TARGET_COOLDOWN", "0"))
	gateDetails.GraceSeconds, _ = strconv.Atoi(Getenv("SHUTDOWN_GRACE_PERIOD", "5"))
	gateDetails.DryRun, _ = strconv.ParseBool(Getenv("DRY_RUN", "false"))
}

// Getenv fetch the env and set the default value, if any
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}
