package models

import "time"

// BatchStatus enumerates the lifecycle states of a composting batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchFinalized  BatchStatus = "finalized"
)

const (
	// StationCount is the number of physical stations a batch moves through.
	StationCount = 7
	// FirstStation is where every batch starts at intake.
	FirstStation = 1
	// DefaultDecayRate is the weekly mass loss fraction used when a batch has none.
	DefaultDecayRate = 0.0366
	// ExpectedYieldFactor is the empirical share of initial mass left after a full cycle.
	ExpectedYieldFactor = 0.78
)

// Batch (lote) is a tracked quantity of material moving through the belt.
type Batch struct {
	ID               string      `bson:"_id" json:"id"`
	Code             string      `bson:"code" json:"code"`
	FacilityCode     string      `bson:"facility_code" json:"facility_code"`
	Status           BatchStatus `bson:"status" json:"status"`
	Station          int         `bson:"station" json:"station"`
	Week             int         `bson:"week" json:"week"`
	InitialMass      float64     `bson:"initial_mass" json:"initial_mass"`
	CurrentMass      float64     `bson:"current_mass" json:"current_mass"`
	DecayRate        *float64    `bson:"decay_rate" json:"decay_rate,omitempty"`
	StartedAt        time.Time   `bson:"started_at" json:"started_at"`
	ClosedAt         *time.Time  `bson:"closed_at" json:"closed_at,omitempty"`
	FinalizedAt      *time.Time  `bson:"finalized_at" json:"finalized_at,omitempty"`
	UpdatedAt        time.Time   `bson:"updated_at" json:"updated_at"`
	CreatorID        string      `bson:"creator_id" json:"creator_id"`
	Latitude         *float64    `bson:"latitude" json:"latitude,omitempty"`
	Longitude        *float64    `bson:"longitude" json:"longitude,omitempty"`
	Fingerprint      *string     `bson:"fingerprint" json:"fingerprint,omitempty"`
	LastAdvanceCycle string      `bson:"last_advance_cycle" json:"last_advance_cycle,omitempty"`
	Version          int64       `bson:"version" json:"version"`
	DeletedAt        *time.Time  `bson:"deleted_at" json:"deleted_at,omitempty"`
}

// EffectiveDecayRate returns the batch rate, falling back to DefaultDecayRate when unset.
func (b Batch) EffectiveDecayRate() float64 {
	if b.DecayRate == nil {
		return DefaultDecayRate
	}
	return *b.DecayRate
}

// IsFinalized reports whether the batch reached its terminal state.
func (b Batch) IsFinalized() bool {
	return b.Status == BatchFinalized
}

// IsDeleted reports whether the batch carries a tombstone.
func (b Batch) IsDeleted() bool {
	return b.DeletedAt != nil
}

// Clone returns a copy that shares no pointers with b.
func (b Batch) Clone() Batch {
	out := b
	out.DecayRate = cloneFloat(b.DecayRate)
	out.Latitude = cloneFloat(b.Latitude)
	out.Longitude = cloneFloat(b.Longitude)
	out.ClosedAt = cloneTime(b.ClosedAt)
	out.FinalizedAt = cloneTime(b.FinalizedAt)
	out.DeletedAt = cloneTime(b.DeletedAt)
	if b.Fingerprint != nil {
		fp := *b.Fingerprint
		out.Fingerprint = &fp
	}
	return out
}

// CreateBatchRequest is the intake payload for a new batch.
type CreateBatchRequest struct {
	Code         string   `json:"code" binding:"required"`
	FacilityCode string   `json:"facility_code" binding:"required"`
	InitialMass  float64  `json:"initial_mass" binding:"required"`
	DecayRate    *float64 `json:"decay_rate"`
	CreatorID    string   `json:"creator_id" binding:"required"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// FinalizeRequest closes a batch with its weighed final mass.
type FinalizeRequest struct {
	FinalMass float64 `json:"final_mass"`
}

// StationProjection is the decayed mass expected at one station.
type StationProjection struct {
	Station int     `json:"station"`
	Week    int     `json:"week"`
	Mass    float64 `json:"mass"`
}

// Guidance gives operators the projected curve and the advisory final mass.
// ExpectedFinalMass is empirical and never enforced.
type Guidance struct {
	BatchCode         string              `json:"batch_code"`
	InitialMass       float64             `json:"initial_mass"`
	DecayRate         float64             `json:"decay_rate"`
	Projection        []StationProjection `json:"projection"`
	ExpectedFinalMass float64             `json:"expected_final_mass"`
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
