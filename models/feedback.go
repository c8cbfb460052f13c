package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Feedback is a user's rating of a try-on result
type Feedback struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	RunID       string             `bson:"run_id" json:"run_id"`
	Rating      int                `bson:"rating" json:"rating"` // 1 to 5
	Message     string             `bson:"message" json:"message"`
	Email       string             `bson:"email,omitempty" json:"email,omitempty"`
	ContactBack bool               `bson:"contact_back" json:"contact_back"`
	FilePaths   []string           `bson:"file_paths" json:"file_paths"` // Object store references of attached screenshots
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
