package models

import "time"

// RestorationRequest maps batch codes of one facility to the station they must be put back on.
type RestorationRequest struct {
	FacilityCode string         `json:"facility_code"`
	Mapping      map[string]int `json:"mapping"`
}

// RestoredBatch is one successfully restored entry.
type RestoredBatch struct {
	BatchCode string  `json:"batch_code"`
	Station   int     `json:"station"`
	Week      int     `json:"week"`
	Mass      float64 `json:"mass"`
}

// ItemError is one failed entry of a bulk operation.
type ItemError struct {
	BatchCode string `json:"batch_code"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error"`
}

// RestorationResponse is always returned once the mapping was processed; callers
// must inspect Errors even when Success is true.
type RestorationResponse struct {
	Success   bool            `json:"success"`
	Facility  string          `json:"facility"`
	Restored  []RestoredBatch `json:"restored"`
	Errors    []ItemError     `json:"errors"`
	Timestamp time.Time       `json:"timestamp"`
}

// FailureEnvelope is the top-level failure body for malformed bulk requests.
type FailureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AdvanceOutcome is the result of one batch inside a weekly advance run.
type AdvanceOutcome string

const (
	OutcomeAdvanced AdvanceOutcome = "advanced"
	OutcomeSkipped  AdvanceOutcome = "skipped"
	OutcomeFailed   AdvanceOutcome = "failed"
)

// AdvanceItem reports one batch of a weekly advance run.
type AdvanceItem struct {
	BatchCode string         `json:"batch_code"`
	Outcome   AdvanceOutcome `json:"outcome"`
	Station   int            `json:"station"`
	Mass      float64        `json:"mass"`
	Error     string         `json:"error,omitempty"`
}

// WeeklyAdvanceRequest triggers the bulk advance of a facility for one cycle.
type WeeklyAdvanceRequest struct {
	Cycle string `json:"cycle" binding:"required"`
}

// WeeklyAdvanceReport is returned by the bulk advance; it never aborts on a single batch.
type WeeklyAdvanceReport struct {
	RunID      string        `json:"run_id"`
	Facility   string        `json:"facility"`
	Cycle      string        `json:"cycle"`
	Advanced   int           `json:"advanced"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Items      []AdvanceItem `json:"items"`
	Errors     []ItemError   `json:"errors"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Certification is the outcome of fingerprinting a batch snapshot.
type Certification struct {
	BatchID      string    `json:"batch_id"`
	BatchCode    string    `json:"batch_code"`
	FacilityCode string    `json:"facility_code"`
	Fingerprint  string    `json:"fingerprint"`
	Version      int64     `json:"version"`
	CertifiedAt  time.Time `json:"certified_at"`
}

// Verification compares a stored fingerprint with one recomputed from current state.
type Verification struct {
	BatchID   string `json:"batch_id"`
	BatchCode string `json:"batch_code"`
	Stored    string `json:"stored"`
	Computed  string `json:"computed"`
	Certified bool   `json:"certified"`
	Match     bool   `json:"match"`
}
