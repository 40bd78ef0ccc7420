package paramstore

import "time"

// Well-known parameter keys.
const (
	KeySystemDate       = "System_Date"
	KeyEODAdminUser     = "EOD_Admin_User"
	KeyLastEODDate      = "Last_EOD_Date"
	KeyLastEODTimestamp = "Last_EOD_Timestamp"
	KeyLastEODUser      = "Last_EOD_User"
)

// DateLayout is the storage format for date-valued parameters.
const DateLayout = "2006-01-02"

// Parameter is a row in parameter_table.
type Parameter struct {
	Key       string
	Value     string
	UpdatedBy string
	UpdatedAt time.Time
}
