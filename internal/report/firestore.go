package report

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bucketdesk/bucketdesk/internal/config"
)

// firestoreCreator creates one document. It is satisfied by the real client
// wrapper and by test fakes.
type firestoreCreator interface {
	Create(ctx context.Context, collection, id string, data map[string]any) error
	Close() error
}

type realFirestoreClient struct {
	client *firestore.Client
}

func (c *realFirestoreClient) Create(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := c.client.Collection(collection).Doc(id).Create(ctx, data)
	return err
}

func (c *realFirestoreClient) Close() error { return c.client.Close() }

// FirestoreSink stores events as documents named by report ID.
type FirestoreSink struct {
	client     firestoreCreator
	collection string
}

// NewFirestoreSink creates a Firestore client for cfg.ProjectID.
func NewFirestoreSink(ctx context.Context, cfg config.FirestoreConfig) (*FirestoreSink, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("reporting.firestore.project_id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return newFirestoreSink(&realFirestoreClient{client: client}, cfg.Collection), nil
}

func newFirestoreSink(client firestoreCreator, collection string) *FirestoreSink {
	if collection == "" {
		collection = "bucketdesk_reports"
	}
	return &FirestoreSink{client: client, collection: collection}
}

func (s *FirestoreSink) Name() string { return "firestore" }

// Write creates the report document. A document that already exists means
// the event was written before and is not an error.
func (s *FirestoreSink) Write(ctx context.Context, ev Event) error {
	data := map[string]any{
		"occurred_at": ev.Time.UTC(),
		"operation":   ev.Operation,
		"bucket":      ev.Bucket,
		"object":      ev.Object,
		"message":     ev.Message(),
		"request_id":  ev.RequestID,
	}
	if err := s.client.Create(ctx, s.collection, ev.ID, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("creating error report document: %w", err)
	}
	return nil
}

func (s *FirestoreSink) Close() error {
	return s.client.Close()
}
