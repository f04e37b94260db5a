package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend keeps one document per browser context.
//
// Reads return errors so a failed lookup never looks like a logged-out
// user. Missing documents are ErrNotFound.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

var (
	_ Backend = (*FirestoreBackend)(nil)
	_ Sweeper = (*FirestoreBackend)(nil)
)

// contextDoc is the stored shape of a browser context
type contextDoc struct {
	Values    map[string]string `firestore:"values"`
	UpdatedAt time.Time         `firestore:"updated_at"`
	ExpiresAt time.Time         `firestore:"expires_at,omitempty"`
}

func NewFirestoreBackend(ctx context.Context, projectID, database, collection string, ttl time.Duration) (*FirestoreBackend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var (
		client *firestore.Client
		err    error
	)
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreBackend{
		client:     client,
		collection: collection,
		ttl:        ttl,
	}, nil
}

func (f *FirestoreBackend) doc(scope string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(scope)
}

func (f *FirestoreBackend) Get(ctx context.Context, scope string, key Key) (string, error) {
	snap, err := f.doc(scope).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("firestore get: %w", err)
	}

	var d contextDoc
	if err := snap.DataTo(&d); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !d.ExpiresAt.IsZero() && time.Now().After(d.ExpiresAt) {
		return "", ErrNotFound
	}
	v, ok := d.Values[string(key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FirestoreBackend) Set(ctx context.Context, scope string, key Key, value string) error {
	now := time.Now()
	update := map[string]any{
		"values":     map[string]any{string(key): value},
		"updated_at": now,
	}
	if f.ttl > 0 {
		update["expires_at"] = now.Add(f.ttl)
	}

	if _, err := f.doc(scope).Set(ctx, update, firestore.MergeAll); err != nil {
		return fmt.Errorf("firestore set %s: %w", key, err)
	}
	return nil
}

func (f *FirestoreBackend) Delete(ctx context.Context, scope string, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(keys)+1)
	for _, k := range keys {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"values", string(k)},
			Value:     firestore.Delete,
		})
	}
	updates = append(updates, firestore.Update{Path: "updated_at", Value: time.Now()})

	_, err := f.doc(scope).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("firestore delete: %w", err)
	}
	return nil
}

// CleanupExpired deletes documents whose expiry has passed
func (f *FirestoreBackend) CleanupExpired(ctx context.Context) (int, error) {
	iter := f.client.Collection(f.collection).
		Where("expires_at", "<", time.Now()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("iterating expired contexts: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete expired browser context", map[string]any{
				"doc":   snap.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		count++
	}
	return count, nil
}

func (f *FirestoreBackend) Close() error {
	return f.client.Close()
}
