package repository

import (
	"context"
	"fmt"

	"greencredits/internal/model"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
)

// UserRepository lists the dashboard's users.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]model.User, error)
}

// TripRepository lists one user's trips.
type TripRepository interface {
	ListTripsByUser(ctx context.Context, userID string) ([]model.Trip, error)
}

type firestoreUserRepo struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewUserRepo reads users from the given top-level collection.
func NewUserRepo(client *firestore.Client, collection string, logger zerolog.Logger) UserRepository {
	return &firestoreUserRepo{client: client, collection: collection, logger: logger}
}

func (r *firestoreUserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	docs, err := r.client.Collection(r.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.collection, err)
	}

	users := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, DecodeUser(doc.Ref.ID, doc.Data()))
	}
	r.logger.Debug().Int("count", len(users)).Str("collection", r.collection).Msg("Users fetched")
	return users, nil
}

type firestoreTripRepo struct {
	client          *firestore.Client
	usersCollection string
	tripsCollection string
}

// NewTripRepo reads trips from the per-user subcollection
// {usersCollection}/{userID}/{tripsCollection}.
func NewTripRepo(client *firestore.Client, usersCollection, tripsCollection string) TripRepository {
	return &firestoreTripRepo{client: client, usersCollection: usersCollection, tripsCollection: tripsCollection}
}

func (r *firestoreTripRepo) ListTripsByUser(ctx context.Context, userID string) ([]model.Trip, error) {
	docs, err := r.client.Collection(r.usersCollection).Doc(userID).Collection(r.tripsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing trips for user %s: %w", userID, err)
	}

	trips := make([]model.Trip, 0, len(docs))
	for _, doc := range docs {
		trips = append(trips, DecodeTrip(doc.Ref.ID, userID, doc.Data()))
	}
	return trips, nil
}
