package probe

import (
	"context"
	"crypto/tls"
	"net/http"
	"strconv"
	"time"

	"github.com/litmusops/resilience-gate/pkg/cerrors"
	"github.com/litmusops/resilience-gate/pkg/log"
	cmp "github.com/litmusops/resilience-gate/pkg/probe/comparator"
	"github.com/litmusops/resilience-gate/pkg/utils/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RunProperties are the retry/timing tunables of one probe
type RunProperties struct {
	Retry           uint
	Interval        time.Duration
	ResponseTimeout time.Duration
	InitialDelay    time.Duration
	PollingInterval time.Duration
}

// HealthProbe sends a request to the given url and matches the status code.
// It is used in edge mode around a stage and in continuous mode as the
// injector's guardrail signal
type HealthProbe struct {
	Name               string
	URL                string
	ResponseCode       string
	Criteria           string
	InsecureSkipVerify bool
	RunProperties      RunProperties
}

// Trigger runs the http probe once through its retry/timeout combination
func (probe HealthProbe) Trigger(ctx context.Context) error {

	// initialize simple http client with default attributes
	timeout := probe.RunProperties.ResponseTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	// impose properties to http client with cert check disabled
	if probe.InsecureSkipVerify {
		transCfg := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		client = &http.Client{Transport: transCfg, Timeout: timeout}
	}

	criteria := probe.Criteria
	if criteria == "" {
		criteria = "=="
	}
	expectedCode := probe.ResponseCode
	if expectedCode == "" {
		expectedCode = "200"
	}

	retries := probe.RunProperties.Retry
	if retries == 0 {
		retries = 1
	}

	// it will retry for the configured retry count, waiting for the interval
	// between iterations, and give up as soon as the context is cancelled
	return retry.Times(retries).
		Wait(probe.RunProperties.Interval).
		TryWithContext(ctx, func(attempt uint) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.URL, nil)
			if err != nil {
				return errors.Errorf("unable to build the %v probe request, err: %v", probe.Name, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetUnreachable, Target: probe.Name, Reason: err.Error()}
			}
			resp.Body.Close()

			code := strconv.Itoa(resp.StatusCode)

			// comparing the response code with the expected criteria
			if err = cmp.FirstValue(code).
				SecondValue(expectedCode).
				Criteria(criteria).
				CompareInt(cerrors.ErrorTypeGeneric); err != nil {
				log.Errorf("The %v health probe has Failed, err: %v", probe.Name, err)
				return err
			}
			return nil
		})
}

// Monitor triggers the probe on its polling interval for the lifetime of the
// context and reports every result on the returned channel. It is the
// guardrail signal source during fault injection
func (probe HealthProbe) Monitor(ctx context.Context) <-chan error {
	results := make(chan error, 1)

	log.InfoWithValues("[Probe]: The health probe information is as follows", logrus.Fields{
		"Name":           probe.Name,
		"URL":            probe.URL,
		"Run Properties": probe.RunProperties,
		"Mode":           "Continuous",
	})

	go func() {
		defer close(results)

		// waiting for initial delay
		if probe.RunProperties.InitialDelay > 0 {
			log.Infof("[Wait]: Waiting for %v before probe execution", probe.RunProperties.InitialDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(probe.RunProperties.InitialDelay):
			}
		}

		polling := probe.RunProperties.PollingInterval
		if polling <= 0 {
			polling = time.Second
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			err := probe.Trigger(ctx)
			select {
			case <-ctx.Done():
				return
			case results <- err:
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(polling):
			}
		}
	}()

	return results
}
