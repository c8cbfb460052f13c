package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TryOnStatusCompleted = "completed"
	TryOnStatusEmpty     = "empty" // job finished without producing an image
	TryOnStatusFailed    = "failed"
)

// TryOn represents a finished try-on run
type TryOn struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID            string             `bson:"run_id" json:"run_id"`
	UserID           string             `bson:"user_id" json:"user_id"`
	SubjectReference string             `bson:"subject_reference" json:"subject_reference"`
	GarmentReference string             `bson:"garment_reference" json:"garment_reference"`
	ResultURL        string             `bson:"result_url,omitempty" json:"result_url,omitempty"` // URL reported by the inference service
	ResultKey        string             `bson:"result_key,omitempty" json:"result_key,omitempty"` // Object store key of the mirrored result
	Status           string             `bson:"status" json:"status"`
	Error            string             `bson:"error,omitempty" json:"error,omitempty"`
	Attempts         int                `bson:"attempts" json:"attempts"`
	DurationMillis   int64              `bson:"duration_ms" json:"duration_ms"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	IsDeleted        bool               `bson:"is_deleted" json:"is_deleted"`
}
