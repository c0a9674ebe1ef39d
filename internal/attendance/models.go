package attendance

import "time"

// State is the lifecycle position of a daily record.
type State string

const (
	StateNotStarted State = "not_started"
	StateCheckedIn  State = "checked_in"
	StateCheckedOut State = "checked_out"
	StateAbsent     State = "absent"
	StateHalfDay    State = "half_day"
)

// Method records how a transition happened.
type Method string

const (
	MethodManual    Method = "manual"
	MethodAuto      Method = "auto"
	MethodQRCode    Method = "qr_code"
	MethodBiometric Method = "biometric"
	MethodOverride  Method = "override"
)

// Record is one subject's attendance for one calendar day, keyed by the
// company-timezone date string (YYYY-MM-DD). At most one per subject per
// date.
type Record struct {
	ID        string `gorm:"primaryKey" json:"id"`
	SubjectID string `gorm:"uniqueIndex:idx_records_subject_date;not null" json:"subject_id"`
	OwnerID   string `gorm:"index" json:"owner_id"`
	Date      string `gorm:"uniqueIndex:idx_records_subject_date;not null" json:"date"`
	State     State  `json:"state"`

	CheckInAt     *time.Time `json:"check_in_at,omitempty"`
	CheckInMethod Method     `json:"check_in_method,omitempty"`
	CheckInZoneID string     `json:"check_in_zone_id,omitempty"`
	// InsideGeofenceAtCheckIn records whether the subject was inside a
	// work zone at the moment of check-in. Out-of-zone check-ins are
	// allowed; the flag is what payroll reviews later.
	InsideGeofenceAtCheckIn bool       `json:"inside_geofence_at_check_in"`
	CheckOutAt              *time.Time `json:"check_out_at,omitempty"`
	CheckOutMethod          Method     `json:"check_out_method,omitempty"`
	CheckOutZoneID          string     `json:"check_out_zone_id,omitempty"`

	IsLate bool `json:"is_late"`
	// ProofRef is an opaque reference to check-in evidence (a QR scan,
	// a photo upload); the backend never dereferences it.
	ProofRef string `json:"proof_ref,omitempty"`

	Overridden     bool   `json:"overridden"`
	OverriddenBy   string `json:"overridden_by,omitempty"`
	OverrideReason string `json:"override_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Record) TableName() string {
	return "attendance.records"
}

// WorkedDuration is the checked-in span, zero until checkout.
func (r Record) WorkedDuration() time.Duration {
	if r.CheckInAt == nil || r.CheckOutAt == nil {
		return 0
	}
	return r.CheckOutAt.Sub(*r.CheckInAt)
}
