package loadgen

import (
	"time"
)

// TrafficShape selects how the worker pool is driven over the run duration
type TrafficShape string

const (
	// ShapeSustained keeps the full concurrency active for the whole duration
	ShapeSustained TrafficShape = "sustained"
	// ShapeRampUp grows active workers linearly from the floor to the limit
	ShapeRampUp TrafficShape = "ramp-up"
	// ShapeBurst alternates between the baseline and periodic full-concurrency spikes
	ShapeBurst TrafficShape = "burst"
)

// RunSpec carries all the tunables of one load run
type RunSpec struct {
	// Concurrency bounds the number of simultaneously in-flight requests, must be >= 1
	Concurrency int
	Duration    time.Duration
	Shape       TrafficShape
	// EndpointWeights maps endpoint path -> relative selection weight
	EndpointWeights map[string]int
	// RampFloor is the starting (ramp-up) or baseline (burst) worker count
	RampFloor int
	// RampFraction is the fraction of the duration over which ramp-up grows, (0,1]
	RampFraction float64
	// BurstInterval is the period between spikes, BurstDuration the spike length
	BurstInterval time.Duration
	BurstDuration time.Duration
	// RequestTimeout bounds every single request
	RequestTimeout time.Duration
	// GracePeriod is granted to in-flight requests after the duration elapses;
	// whatever has not completed by then is force-recorded as a timeout
	GracePeriod time.Duration
	// RequestsPerSecond optionally caps overall issuance, 0 means unlimited
	RequestsPerSecond float64
	// UnreachableAfter escalates to a target-unreachable error when the first
	// N requests all fail without any response from the target
	UnreachableAfter int
}

// Report summarises one completed load run
type Report struct {
	Issued   int
	Recorded int
	Elapsed  time.Duration
}
