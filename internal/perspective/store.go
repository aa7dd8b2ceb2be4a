// Package perspective implements the read-model side of the Perspective
// Worker: persisting whatever document shape a user's
// Apply(model, event) function produces, keyed by stream_id, into a
// MongoDB collection per perspective name.
package perspective

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
)

// Apply projects a model forward given the next event in its stream.
// Implementations must be pure and deterministic — the
// same (model, event) pair must always yield the same newModel, since
// retries and partition reassignments may call it more than once for
// the same event.
type Apply func(currentModel bson.M, event Event) (newModel bson.M, err error)

// Event is the minimal view of an appended domain event a perspective
// needs to project: its type, ordered position, and raw payload.
type Event struct {
	EventID   string
	Version   int64
	EventType string
	EventData []byte
}

// Store persists one document per (perspective, stream_id) pair.
type Store struct {
	client   *mongo.Client
	database string
	logger   libLog.Logger
}

func New(client *mongo.Client, database string, logger libLog.Logger) *Store {
	return &Store{client: client, database: database, logger: logger}
}

func (s *Store) collection(perspectiveName string) *mongo.Collection {
	return s.client.Database(strings.ToLower(s.database)).Collection(strings.ToLower(perspectiveName))
}

// Load fetches the current projected document for a stream, or an empty
// document if none exists yet (the perspective's first event).
func (s *Store) Load(ctx context.Context, perspectiveName, streamID string) (bson.M, error) {
	var doc bson.M

	err := s.collection(perspectiveName).FindOne(ctx, bson.M{"stream_id": streamID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return bson.M{}, nil
	}

	if err != nil {
		return nil, err
	}

	delete(doc, "_id")

	return doc, nil
}

// Save upserts the projected document for a stream as a partial patch:
// the model's non-nil fields are written with $set (UpdateOne with
// upsert), and fields already stored but absent or nil in the model are
// left as they are.
func (s *Store) Save(ctx context.Context, perspectiveName, streamID string, model bson.M) error {
	patch := BuildDocumentToPatch(model)
	patch["stream_id"] = streamID

	opts := options.Update().SetUpsert(true)

	_, err := s.collection(perspectiveName).UpdateOne(ctx,
		bson.M{"stream_id": streamID},
		bson.M{"$set": patch},
		opts,
	)

	return err
}

// BuildDocumentToPatch strips nil-valued keys from model so a $set
// update never clobbers existing fields with an accidental nil — an
// Apply function that returns a partial model patches rather than
// overwrites those fields.
func BuildDocumentToPatch(model bson.M) bson.M {
	out := bson.M{}

	for k, v := range model {
		if v == nil {
			continue
		}

		out[k] = v
	}

	return out
}
