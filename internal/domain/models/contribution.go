package models

import "time"

// PhotoCategory tags what a photo documents.
type PhotoCategory string

const (
	PhotoContent     PhotoCategory = "content"
	PhotoWeighing    PhotoCategory = "weighing"
	PhotoDestination PhotoCategory = "destination"
)

// Valid reports whether c is one of the known categories.
func (c PhotoCategory) Valid() bool {
	switch c {
	case PhotoContent, PhotoWeighing, PhotoDestination:
		return true
	}
	return false
}

// ContributionEvent (entrega) is one delivery of material into a batch.
type ContributionEvent struct {
	ID                string     `bson:"_id" json:"id"`
	BatchID           string     `bson:"batch_id" json:"batch_id"`
	BatchCode         string     `bson:"batch_code" json:"batch_code"`
	Mass              float64    `bson:"mass" json:"mass"`
	ContributorID     string     `bson:"contributor_id" json:"contributor_id"`
	Latitude          *float64   `bson:"latitude" json:"latitude,omitempty"`
	Longitude         *float64   `bson:"longitude" json:"longitude,omitempty"`
	GeofenceDistanceM *int       `bson:"geofence_distance_m" json:"geofence_distance_m,omitempty"`
	OutsideGeofence   bool       `bson:"outside_geofence" json:"outside_geofence"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	DeletedAt         *time.Time `bson:"deleted_at" json:"deleted_at,omitempty"`
}

// PhotoRecord references a stored photo of a contribution or of the batch itself.
type PhotoRecord struct {
	ID             string        `bson:"_id" json:"id"`
	BatchID        string        `bson:"batch_id" json:"batch_id"`
	ContributionID string        `bson:"contribution_id" json:"contribution_id,omitempty"`
	Reference      string        `bson:"reference" json:"reference"`
	Category       PhotoCategory `bson:"category" json:"category"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
}

// ContributionRequest registers a delivery.
type ContributionRequest struct {
	Mass          float64  `json:"mass" binding:"required"`
	ContributorID string   `json:"contributor_id" binding:"required"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// PhotoRequest attaches a photo reference to a batch or one of its contributions.
type PhotoRequest struct {
	Reference      string        `json:"reference" binding:"required"`
	Category       PhotoCategory `json:"category" binding:"required"`
	ContributionID string        `json:"contribution_id"`
}

// MassSummary aggregates live contributions of a batch.
type MassSummary struct {
	BatchCode        string  `json:"batch_code"`
	Contributions    int     `json:"contributions"`
	ContributedMass  float64 `json:"contributed_mass"`
	Contributors     int     `json:"distinct_contributors"`
	OutsideGeofence  int     `json:"outside_geofence"`
	InitialBatchMass float64 `json:"initial_batch_mass"`
	CurrentBatchMass float64 `json:"current_batch_mass"`
}
