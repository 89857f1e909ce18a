package business

import "context"

// ListMDMServers returns the organization's MDM servers. The endpoint
// normally answers with one page; links.next is still followed.
func (c *Client) ListMDMServers(ctx context.Context) ([]MDMServer, error) {
	return listAll[MDMServer](ctx, c, OpListMDMServers, c.endpoint("mdmServers"))
}

// GetDevicesForMDM returns the IDs of the devices assigned to an MDM server.
func (c *Client) GetDevicesForMDM(ctx context.Context, mdmID string) ([]string, error) {
	linkage, err := listAll[ResourceIdentifier](ctx, c, OpGetDevicesForMDM, c.endpoint("mdmServers", mdmID, "relationships", "devices"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(linkage))
	for _, l := range linkage {
		ids = append(ids, l.ID)
	}
	return ids, nil
}
