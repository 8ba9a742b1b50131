package models

import "time"

// Facility (unidade) is a site running batches; its reference coordinate anchors the geofence.
type Facility struct {
	Code      string    `bson:"_id" json:"code"`
	Name      string    `bson:"name" json:"name" binding:"required"`
	Latitude  *float64  `bson:"latitude" json:"latitude,omitempty"`
	Longitude *float64  `bson:"longitude" json:"longitude,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
