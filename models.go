package business

import (
	"bytes"
	"encoding/json"
)

// Resource types used in JSON:API documents.
const (
	TypeOrgDevices          = "orgDevices"
	TypeMDMServers          = "mdmServers"
	TypeOrgDeviceActivities = "orgDeviceActivities"
)

// ResourceIdentifier is a JSON:API resource linkage.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Device is an organization device.
type Device struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes DeviceAttributes `json:"attributes"`
}

// DeviceAttributes is the union of the attribute sets returned across API
// versions. Every field except SerialNumber may be absent.
type DeviceAttributes struct {
	SerialNumber       string    `json:"serialNumber"`
	Name               *string   `json:"name,omitempty"`
	Model              *string   `json:"model,omitempty"`
	DeviceModel        *string   `json:"deviceModel,omitempty"`
	DeviceFamily       *string   `json:"deviceFamily,omitempty"`
	ProductFamily      *string   `json:"productFamily,omitempty"`
	ProductType        *string   `json:"productType,omitempty"`
	OSVersion          *string   `json:"osVersion,omitempty"`
	DeviceCapacity     *string   `json:"deviceCapacity,omitempty"`
	Color              *string   `json:"color,omitempty"`
	Status             *string   `json:"status,omitempty"`
	OrderNumber        *string   `json:"orderNumber,omitempty"`
	PartNumber         *string   `json:"partNumber,omitempty"`
	PurchaseSourceType *string   `json:"purchaseSourceType,omitempty"`
	PurchaseSourceID   *string   `json:"purchaseSourceId,omitempty"`
	AddedToOrgDateTime *DateTime `json:"addedToOrgDateTime,omitempty"`
	UpdatedDateTime    *DateTime `json:"updatedDateTime,omitempty"`
}

// SerialNumber returns the device serial number.
func (d Device) SerialNumber() string { return d.Attributes.SerialNumber }

// Name returns the device name, if the API provides one.
func (d Device) Name() string { return value(d.Attributes.Name) }

// Model returns deviceModel, falling back to model.
func (d Device) Model() string {
	return firstOf(d.Attributes.DeviceModel, d.Attributes.Model)
}

// OS returns the product family, falling back to deviceFamily.
func (d Device) OS() string {
	return firstOf(d.Attributes.ProductFamily, d.Attributes.DeviceFamily)
}

// ProductType returns the product type, e.g. "iPhone15,2".
func (d Device) ProductType() string { return value(d.Attributes.ProductType) }

// EnrollmentState returns the device status.
func (d Device) EnrollmentState() string { return value(d.Attributes.Status) }

// MDMServer is a device management service registered in the organization.
type MDMServer struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Attributes MDMServerAttributes `json:"attributes"`
}

// MDMServerAttributes holds the server name, type and timestamps.
type MDMServerAttributes struct {
	ServerName      string   `json:"serverName"`
	ServerType      string   `json:"serverType"`
	CreatedDateTime DateTime `json:"createdDateTime"`
	UpdatedDateTime DateTime `json:"updatedDateTime"`
}

// Coverage is an AppleCare coverage record.
type Coverage struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Attributes CoverageAttributes `json:"attributes"`
}

// CoverageAttributes are all optional; the API may omit any of them.
type CoverageAttributes struct {
	SerialNumber             *string `json:"serialNumber,omitempty"`
	CoverageStatus           *string `json:"coverageStatus,omitempty"`
	CoverageType             *string `json:"coverageType,omitempty"`
	CoverageEndDate          *string `json:"coverageEndDate,omitempty"`
	PurchaseDate             *string `json:"purchaseDate,omitempty"`
	EstimatedPurchaseDate    *string `json:"estimatedPurchaseDate,omitempty"`
	RegistrationDate         *string `json:"registrationDate,omitempty"`
	WarrantyStatus           *string `json:"warrantyStatus,omitempty"`
	RepairCoverage           *string `json:"repairCoverage,omitempty"`
	TechnicalSupportCoverage *string `json:"technicalSupportCoverage,omitempty"`
	AppleCarePlanType        *string `json:"appleCarePlanType,omitempty"`
	DeviceID                 *string `json:"deviceId,omitempty"`
	HardwareType             *string `json:"hardwareType,omitempty"`
}

// coverageResponse accepts data as a single record or as a list.
type coverageResponse struct {
	Data []Coverage
}

func (r *coverageResponse) UnmarshalJSON(b []byte) error {
	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	raw := bytes.TrimSpace(doc.Data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		r.Data = nil
		return nil
	case raw[0] == '[':
		return json.Unmarshal(raw, &r.Data)
	}
	var one Coverage
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	r.Data = []Coverage{one}
	return nil
}

// ActivityType selects the bulk operation of an activity.
type ActivityType string

const (
	ActivityAssignDevices   ActivityType = "ASSIGN_DEVICES"
	ActivityUnassignDevices ActivityType = "UNASSIGN_DEVICES"
)

// Activity is a submitted bulk device activity as last reported by the
// server. The client never waits for a terminal status.
type Activity struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Attributes ActivityAttributes `json:"attributes"`
}

// ActivityAttributes holds the server-side status of an activity.
type ActivityAttributes struct {
	Status            string    `json:"status"`    // e.g. IN_PROGRESS, COMPLETED, FAILED
	SubStatus         string    `json:"subStatus"` // detail for Status
	CreatedDateTime   DateTime  `json:"createdDateTime"`
	CompletedDateTime *DateTime `json:"completedDateTime,omitempty"`
}

// activityRequest is the orgDeviceActivities creation document.
type activityRequest struct {
	Data activityRequestData `json:"data"`
}

type activityRequestData struct {
	Type          string                `json:"type"`
	Attributes    activityRequestAttrs  `json:"attributes"`
	Relationships activityRelationships `json:"relationships"`
}

type activityRequestAttrs struct {
	ActivityType ActivityType `json:"activityType"`
}

type activityRelationships struct {
	MDMServer toOne  `json:"mdmServer"`
	Devices   toMany `json:"devices"`
}

type toOne struct {
	Data ResourceIdentifier `json:"data"`
}

type toMany struct {
	Data []ResourceIdentifier `json:"data"`
}

// assignedServerResponse is the assignedServer linkage; data is null when
// the device has no server.
type assignedServerResponse struct {
	Data *ResourceIdentifier `json:"data"`
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstOf(ps ...*string) string {
	for _, p := range ps {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}
