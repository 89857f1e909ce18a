package business

import (
	"context"
	"net/http"
)

// AssignDevices submits a bulk activity for deviceIDs and returns the new
// activity's ID. A non-empty mdmID assigns the devices to that server; an
// empty mdmID unassigns them. Success is 200 or 201; poll the result with
// CheckActivityStatus.
func (c *Client) AssignDevices(ctx context.Context, deviceIDs []string, mdmID string) (string, error) {
	if len(deviceIDs) == 0 {
		return "", ErrNoDevices
	}

	activityType := ActivityAssignDevices
	if mdmID == "" {
		activityType = ActivityUnassignDevices
	}

	devices := make([]ResourceIdentifier, len(deviceIDs))
	for i, id := range deviceIDs {
		devices[i] = ResourceIdentifier{Type: TypeOrgDevices, ID: id}
	}

	body := activityRequest{
		Data: activityRequestData{
			Type:       TypeOrgDeviceActivities,
			Attributes: activityRequestAttrs{ActivityType: activityType},
			Relationships: activityRelationships{
				MDMServer: toOne{Data: ResourceIdentifier{Type: TypeMDMServers, ID: mdmID}},
				Devices:   toMany{Data: devices},
			},
		},
	}

	var resp singleResponse[Activity]
	if err := c.postJSON(ctx, OpAssignDevices, c.endpoint("orgDeviceActivities"), body, &resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	c.Logger.Info("Activity submitted", "activity", resp.Data.ID, "type", activityType, "devices", len(deviceIDs))
	return resp.Data.ID, nil
}

// UnassignDevices is AssignDevices with no MDM server.
func (c *Client) UnassignDevices(ctx context.Context, deviceIDs []string) (string, error) {
	return c.AssignDevices(ctx, deviceIDs, "")
}

// CheckActivityStatus returns the current status of an activity. It does
// not wait for the activity to finish.
func (c *Client) CheckActivityStatus(ctx context.Context, activityID string) (*Activity, error) {
	var resp singleResponse[Activity]
	if err := c.getJSON(ctx, OpCheckActivityStatus, c.endpoint("orgDeviceActivities", activityID), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
