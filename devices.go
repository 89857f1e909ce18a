package business

import (
	"context"
	"errors"
	"net/http"
)

// ListDevices returns every organization device, following links.next
// until the server stops returning one. A failed page discards the pages
// already read and returns the error.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	return listAll[Device](ctx, c, OpListDevices, c.endpoint("orgDevices"))
}

// GetDevice returns a single device.
func (c *Client) GetDevice(ctx context.Context, id string) (*Device, error) {
	var resp singleResponse[Device]
	if err := c.getJSON(ctx, OpGetDevice, c.endpoint("orgDevices", id), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetAssignedServer returns the ID of the MDM server the device is assigned
// to, with ok == false when it has none. The operation's policy is SoftFail,
// so a non-200 response or any other failure is also reported as
// unassigned and err is nil.
func (c *Client) GetAssignedServer(ctx context.Context, deviceID string) (serverID string, ok bool, err error) {
	var resp assignedServerResponse
	err = c.getJSON(ctx, OpGetAssignedServer, c.endpoint("orgDevices", deviceID, "relationships", "assignedServer"), &resp)
	if err != nil {
		return "", false, c.applyPolicy(OpGetAssignedServer, err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", false, nil
	}
	return resp.Data.ID, true, nil
}

// GetAppleCareCoverage returns the AppleCare coverage of a device.
// A 404 response, or an empty coverage list, yields ErrNoCoverageAvailable.
func (c *Client) GetAppleCareCoverage(ctx context.Context, deviceID string) (*Coverage, error) {
	var resp coverageResponse
	err := c.getJSON(ctx, OpGetAppleCareCoverage, c.endpoint("orgDevices", deviceID, "appleCareCoverage"), &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNoCoverageAvailable
		}
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoCoverageAvailable
	}
	return &resp.Data[0], nil
}
