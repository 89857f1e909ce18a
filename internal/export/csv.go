// Package export writes device inventories in spreadsheet-friendly formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	business "github.com/takimoto3/appleapi-business"
)

// DeviceColumns is the CSV header row.
var DeviceColumns = []string{"Serial Number", "Model", "Product Family", "Product Type", "Status", "ID"}

// WriteDevicesCSV writes one row per device after the header. Absent
// attributes are written as empty cells.
func WriteDevicesCSV(w io.Writer, devices []business.Device) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DeviceColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, d := range devices {
		row := []string{
			d.SerialNumber(),
			d.Model(),
			d.OS(),
			d.ProductType(),
			d.EnrollmentState(),
			d.ID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing device %s: %w", d.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
