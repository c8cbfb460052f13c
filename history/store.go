// Package history persists finished try-on runs and user accounts in
// MongoDB.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/virtual-tryon/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	tryOnCollection = "tryons"
	userCollection  = "users"
	queryTimeout    = 10 * time.Second

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Store reads and writes try-on records.
type Store struct {
	coll *mongo.Collection
}

// NewStore uses the tryons collection of database dbName.
func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{coll: client.Database(dbName).Collection(tryOnCollection)}
}

// Save inserts a record, assigning its id when unset.
func (s *Store) Save(ctx context.Context, t *models.TryOn) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := s.coll.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("failed to save try-on record: %w", err)
	}
	return nil
}

// Page is one page of a user's gallery.
type Page struct {
	Items       []models.TryOn `json:"images"`
	Total       int64          `json:"total"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
}

// NormalizePage clamps page and limit to valid values.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// TotalPages is the number of pages needed for total items.
func TotalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// List returns the user's completed runs, newest first.
func (s *Store) List(ctx context.Context, userID string, page, limit int) (Page, error) {
	page, limit = NormalizePage(page, limit)
	filter := bson.M{"user_id": userID, "status": models.TryOnStatusCompleted, "is_deleted": false}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("failed to count try-on records: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch try-on records: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.TryOn{}
	if err := cursor.All(ctx, &items); err != nil {
		return Page{}, fmt.Errorf("failed to decode try-on records: %w", err)
	}

	return Page{
		Items:       items,
		Total:       total,
		CurrentPage: page,
		TotalPages:  TotalPages(total, limit),
	}, nil
}

// Users stores accounts keyed by Google id.
type Users struct {
	coll *mongo.Collection
}

func NewUsers(client *mongo.Client, dbName string) *Users {
	return &Users{coll: client.Database(dbName).Collection(userCollection)}
}

// Upsert creates or refreshes the account for u.GoogleID and returns it
// with its id.
func (u *Users) Upsert(ctx context.Context, user models.User) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"name":       user.Name,
			"email":      user.Email,
			"picture":    user.Picture,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"google_id": user.GoogleID}, update, opts).Decode(&saved)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return saved, nil
}

// ErrUserNotFound is returned by Get for unknown or malformed ids.
var ErrUserNotFound = errors.New("user not found")

// Get loads the account with the given hex id.
func (u *Users) Get(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user models.User
	if err := u.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}
