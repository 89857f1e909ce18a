package business

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCoverageAvailable is returned when the API has no AppleCare
	// coverage record for a device. It is an expected empty result.
	ErrNoCoverageAvailable = errors.New("no AppleCare coverage information available for this device")

	// ErrNoDevices is returned when an activity is submitted without devices.
	ErrNoDevices = errors.New("no device IDs given")
)

// APIError is returned when the API answers with an unexpected status.
type APIError struct {
	Op         string // Operation name, e.g. OpListDevices
	StatusCode int    // HTTP status code
	Body       string // Response body, truncated to 1 MiB
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API returned status %d", e.Op, e.StatusCode)
}

// ErrorPolicy decides how an operation reports a failed request.
type ErrorPolicy int

const (
	// FailFast returns every failure to the caller.
	FailFast ErrorPolicy = iota
	// SoftFail reports any failure as an absent result.
	SoftFail
)

func (p ErrorPolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case SoftFail:
		return "soft-fail"
	}
	return fmt.Sprintf("ErrorPolicy(%d)", int(p))
}

// Operation names, used in errors, logs and metrics.
const (
	OpListDevices          = "listDevices"
	OpGetDevice            = "getDevice"
	OpListMDMServers       = "listMDMServers"
	OpGetDevicesForMDM     = "getDevicesForMDM"
	OpGetAssignedServer    = "getAssignedServer"
	OpGetAppleCareCoverage = "getAppleCareCoverage"
	OpAssignDevices        = "assignDevices"
	OpCheckActivityStatus  = "checkActivityStatus"
)

// An unassigned device is a normal state, so its lookup never fails.
var errorPolicies = map[string]ErrorPolicy{
	OpGetAssignedServer: SoftFail,
}

// PolicyOf returns the error policy of the named operation.
func PolicyOf(op string) ErrorPolicy {
	return errorPolicies[op]
}

// applyPolicy returns err unless op is SoftFail, in which case the error is
// logged and dropped.
func (c *Client) applyPolicy(op string, err error) error {
	if err == nil || PolicyOf(op) != SoftFail {
		return err
	}
	c.Logger.Debug("Failure reported as absent result", "op", op, "error", err)
	return nil
}
