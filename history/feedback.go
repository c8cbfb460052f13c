package history

import (
	"context"
	"fmt"
	"time"

	"github.com/raushankrgupta/virtual-tryon/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const feedbackCollection = "feedbacks"

// Feedbacks stores ratings of try-on results.
type Feedbacks struct {
	coll *mongo.Collection
}

func NewFeedbacks(client *mongo.Client, dbName string) *Feedbacks {
	return &Feedbacks{coll: client.Database(dbName).Collection(feedbackCollection)}
}

// Save inserts f, assigning its id and creation time when unset.
func (s *Feedbacks) Save(ctx context.Context, f *models.Feedback) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := s.coll.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}
