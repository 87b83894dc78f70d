package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	"github.com/litmusops/resilience-gate/pkg/math"
	"github.com/litmusops/resilience-gate/pkg/sink"
	"github.com/litmusops/resilience-gate/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// pollInterval bounds how quickly workers observe shape changes and cancellation
const pollInterval = 100 * time.Millisecond

// Run generates synthetic traffic against the target and returns one sample
// per issued request. A target that refuses the connection on every one of
// the first UnreachableAfter requests escalates to a target-unreachable error
// instead of producing a silently 100%-error sample set; a target that is
// merely slow or erroring keeps the run alive
func Run(ctx context.Context, gateDetails types.GateDetails, spec RunSpec) ([]types.RequestSample, Report, error) {
	if err := validateSpec(spec); err != nil {
		return nil, Report{}, err
	}

	endpoints, weights, totalWeight := normalizeWeights(spec.EndpointWeights)

	log.InfoWithValues("[Load]: The load run tunables are as follows", logrus.Fields{
		"Target":      gateDetails.TargetBaseURL,
		"Concurrency": spec.Concurrency,
		"Duration":    spec.Duration.String(),
		"Shape":       string(spec.Shape),
		"Endpoints":   len(endpoints),
	})

	// issueCtx gates new request issuance, flightCtx additionally grants the
	// grace period to whatever is still in flight
	issueCtx, stopIssue := context.WithCancel(ctx)
	defer stopIssue()
	flightCtx, stopFlight := context.WithCancel(context.Background())
	defer stopFlight()

	go func() {
		select {
		case <-time.After(spec.Duration):
		case <-ctx.Done():
		}
		stopIssue()
		grace := spec.GracePeriod
		if grace <= 0 {
			grace = spec.RequestTimeout
		}
		time.Sleep(grace)
		stopFlight()
	}()

	var limiter *rate.Limiter
	if spec.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(spec.RequestsPerSecond), math.Maximum(1, int(spec.RequestsPerSecond)))
	}

	client := &http.Client{}
	arena := sink.NewArena(spec.Concurrency, 0)
	start := time.Now()

	var issued, responded int64
	var unreachableOnce sync.Once
	unreachable := false

	g := new(errgroup.Group)
	for i := 0; i < spec.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			writer := arena.Writer(worker)
			rng := rand.New(rand.NewSource(start.UnixNano() + int64(worker)))
			for {
				select {
				case <-issueCtx.Done():
					return nil
				default:
				}

				if worker >= spec.allowedWorkers(time.Since(start)) {
					select {
					case <-issueCtx.Done():
						return nil
					case <-time.After(pollInterval):
					}
					continue
				}

				if limiter != nil {
					if err := limiter.Wait(issueCtx); err != nil {
						return nil
					}
				}

				endpoint := endpoints[math.WeightedIndex(weights, rng.Intn(totalWeight))]
				count := atomic.AddInt64(&issued, 1)
				sample, connected := issueRequest(flightCtx, client, gateDetails.TargetBaseURL, endpoint, spec.RequestTimeout)
				writer.Record(sample)

				if connected {
					atomic.StoreInt64(&responded, 1)
				} else if spec.UnreachableAfter > 0 &&
					count >= int64(spec.UnreachableAfter) &&
					atomic.LoadInt64(&responded) == 0 {
					var escalate bool
					unreachableOnce.Do(func() {
						escalate = true
						unreachable = true
						stopIssue()
					})
					if escalate {
						return cerrors.Error{
							ErrorCode: cerrors.ErrorTypeTargetUnreachable,
							Phase:     types.LoadRun,
							Target:    gateDetails.TargetName,
							Reason:    fmt.Sprintf("connection to %s failed for the first %d requests", gateDetails.TargetBaseURL, spec.UnreachableAfter),
						}
					}
					return nil
				}
			}
		})
	}

	err := g.Wait()
	stopFlight()

	report := Report{
		Issued:   int(atomic.LoadInt64(&issued)),
		Recorded: arena.Len(),
		Elapsed:  time.Since(start),
	}
	if unreachable {
		log.Errorf("[Load]: Target is unreachable, issued: %v, recorded: %v", report.Issued, report.Recorded)
		return arena.Samples(), report, err
	}

	log.InfoWithValues("[Load]: The load run has completed", logrus.Fields{
		"Issued":   report.Issued,
		"Recorded": report.Recorded,
		"Elapsed":  report.Elapsed.String(),
	})
	return arena.Samples(), report, ctx.Err()
}

// issueRequest performs one request and always produces exactly one sample.
// The bool reports whether the target accepted the connection; a slow or
// erroring target still counts as connected
func issueRequest(ctx context.Context, client *http.Client, baseURL, endpoint string, timeout time.Duration) (types.RequestSample, bool) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sample := types.RequestSample{
		Timestamp:  time.Now(),
		EndpointID: endpoint,
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+endpoint, nil)
	if err != nil {
		sample.Outcome = types.OutcomeError
		return sample, true
	}

	begin := time.Now()
	resp, err := client.Do(req)
	sample.LatencyMs = float64(time.Since(begin)) / float64(time.Millisecond)

	if err != nil {
		sample.Outcome = classifyTransportError(err)
		return sample, !isConnectionFailure(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		sample.Outcome = types.OutcomeError
	} else {
		sample.Outcome = types.OutcomeSuccess
	}
	return sample, true
}

// classifyTransportError maps a failed transport call onto the sample outcome:
// deadline/cancellation means the request ran out of time (including the
// post-duration grace cutoff), anything else is a plain error
func classifyTransportError(err error) types.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.OutcomeTimeout
	}
	return types.OutcomeError
}

// isConnectionFailure reports whether the request never reached the target:
// the dial itself failed, as opposed to a connection that was accepted but
// answered slowly or badly
func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

func validateSpec(spec RunSpec) error {
	if spec.Concurrency < 1 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Phase:     types.LoadRun,
			Reason:    fmt.Sprintf("concurrency must be >= 1, got %d", spec.Concurrency),
		}
	}
	if spec.Duration <= 0 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Phase:     types.LoadRun,
			Reason:    "load run duration must be positive",
		}
	}
	if len(spec.EndpointWeights) == 0 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Phase:     types.LoadRun,
			Reason:    "at least one endpoint weight is required",
		}
	}
	total := 0
	for endpoint, weight := range spec.EndpointWeights {
		if weight < 0 {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConfiguration,
				Phase:     types.LoadRun,
				Reason:    fmt.Sprintf("negative weight %d for endpoint %s", weight, endpoint),
			}
		}
		total += weight
	}
	if total == 0 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Phase:     types.LoadRun,
			Reason:    "endpoint weights sum to zero",
		}
	}
	return nil
}

// normalizeWeights flattens the weight map into parallel slices with a stable order
func normalizeWeights(endpointWeights map[string]int) ([]string, []int, int) {
	endpoints := make([]string, 0, len(endpointWeights))
	for endpoint := range endpointWeights {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)

	weights := make([]int, len(endpoints))
	total := 0
	for i, endpoint := range endpoints {
		weights[i] = endpointWeights[endpoint]
		total += weights[i]
	}
	return endpoints, weights, total
}
