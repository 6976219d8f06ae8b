// Package mongo keeps the bridge ledger: one document per Cardano settlement.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"trtlbridge/types"
)

var (
	ErrNotFound = errors.New("bridge record not found")
	// ErrNotUpdated means the record exists but is not in a state the update applies to.
	ErrNotUpdated = errors.New("bridge record not updated")
)

const duplicateKeyCode = 11000

// Store implements the ledger on a MongoDB collection.
type Store struct {
	c      *mgo.Client
	col    *mgo.Collection
	logger *zap.Logger
	now    func() time.Time
}

// recordDoc is the stored shape of types.BridgeRecord.
type recordDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	SchemaVersion      int                `bson:"schemaVersion"`
	Status             types.BridgeStatus `bson:"status"`
	SourceTxHash       string             `bson:"sourceTxHash"`
	SourceAddress      string             `bson:"sourceAddress"`
	SourceAmount       uint64             `bson:"sourceAmount"`
	DestinationAddress string             `bson:"destinationAddress"`
	DestinationAmount  uint64             `bson:"destinationAmount"`
	DestinationTxHash  string             `bson:"destinationTxHash,omitempty"`
	PendingTxHash      string             `bson:"pendingTxHash,omitempty"`
	PendingValidUntil  uint64             `bson:"pendingValidUntil,omitempty"`
	Completed          bool               `bson:"completed"`
	Attempts           int                `bson:"attempts"`
	Message            string             `bson:"message,omitempty"`
	Conversion         types.Conversion   `bson:"conversion"`
	CreatedAt          time.Time          `bson:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt"`
}

func (d recordDoc) record() *types.BridgeRecord {
	return &types.BridgeRecord{
		ID:                 d.ID.Hex(),
		SchemaVersion:      d.SchemaVersion,
		Status:             d.Status,
		SourceTxHash:       d.SourceTxHash,
		SourceAddress:      d.SourceAddress,
		SourceAmount:       d.SourceAmount,
		DestinationAddress: d.DestinationAddress,
		DestinationAmount:  d.DestinationAmount,
		DestinationTxHash:  d.DestinationTxHash,
		PendingTxHash:      d.PendingTxHash,
		PendingValidUntil:  d.PendingValidUntil,
		Completed:          d.Completed,
		Attempts:           d.Attempts,
		Message:            d.Message,
		Conversion:         d.Conversion,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// New connects to the MongoDB uri and selects the ledger collection.
func New(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Store, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot create mongo client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = c.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}
	if err = c.Ping(connectCtx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongo DB: %w", err)
	}

	return &Store{
		c:      c,
		col:    c.Database(database).Collection(collection),
		logger: logger.With(zap.String("component", "mongo")),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.c.Ping(ctx, nil)
}

// Close disconnects the client. Must be called at termination time.
func (s *Store) Close(ctx context.Context) error {
	return s.c.Disconnect(ctx)
}

// EnsureIndexes creates the unique source hash index and the scan order index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mgo.IndexModel{
		{
			Keys:    bson.D{{Key: "sourceTxHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sourceTxHash_unique"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("status_createdAt"),
		},
	})
	if err != nil {
		return fmt.Errorf("cannot create ledger indexes: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var we mgo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				return true
			}
		}
	}
	var ce mgo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == duplicateKeyCode
	}
	return false
}

// InsertIfAbsent stores rec unless a record with the same source hash exists.
// It returns the stored record and whether this call created it.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *types.BridgeRecord) (*types.BridgeRecord, bool, error) {
	now := s.now()
	doc := recordDoc{
		SchemaVersion:      types.SchemaVersion,
		Status:             types.StatusPending,
		SourceTxHash:       rec.SourceTxHash,
		SourceAddress:      rec.SourceAddress,
		SourceAmount:       rec.SourceAmount,
		DestinationAddress: rec.DestinationAddress,
		DestinationAmount:  rec.DestinationAmount,
		Message:            rec.Message,
		Conversion:         rec.Conversion,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"sourceTxHash": rec.SourceTxHash},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	// a concurrent upsert of the same hash lost the race on the unique index
	if err != nil && !isDuplicateKey(err) {
		return nil, false, fmt.Errorf("could not insert bridge record: %w", err)
	}
	created := err == nil && res.UpsertedID != nil

	stored, err := s.FindBySourceTxHash(ctx, rec.SourceTxHash)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) findOne(ctx context.Context, filter interface{}) (*types.BridgeRecord, error) {
	var doc recordDoc
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading bridge record: %w", err)
	}
	return doc.record(), nil
}

func (s *Store) FindBySourceTxHash(ctx context.Context, txHash string) (*types.BridgeRecord, error) {
	return s.findOne(ctx, bson.M{"sourceTxHash": txHash})
}

// GetByID returns ErrNotFound for unknown and malformed ids alike.
func (s *Store) GetByID(ctx context.Context, id string) (*types.BridgeRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *Store) find(ctx context.Context, filter interface{}, limit int) ([]*types.BridgeRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error scanning bridge records: %w", err)
	}
	defer cur.Close(ctx)

	var records []*types.BridgeRecord
	for cur.Next(ctx) {
		var doc recordDoc
		if err = cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding bridge record: %w", err)
		}
		records = append(records, doc.record())
	}
	if err = cur.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FindPayable returns not completed records the dispatcher should work on, oldest first.
func (s *Store) FindPayable(ctx context.Context, limit int) ([]*types.BridgeRecord, error) {
	return s.find(ctx, bson.M{
		"completed": false,
		"status":    bson.M{"$in": []types.BridgeStatus{types.StatusPending, types.StatusSubmitted}},
	}, limit)
}

func (s *Store) ListByStatus(ctx context.Context, status types.BridgeStatus, limit int) ([]*types.BridgeRecord, error) {
	return s.find(ctx, bson.M{"status": status}, limit)
}

// update applies set/unset to a not completed record.
func (s *Store) update(ctx context.Context, id string, set, unset bson.M, inc bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set["updatedAt"] = s.now()
	upd := bson.M{"$set": set}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	if len(inc) > 0 {
		upd["$inc"] = inc
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid, "completed": false}, upd)
	if err != nil {
		return fmt.Errorf("error updating bridge record %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotUpdated, id)
	}
	return nil
}

// MarkSubmitted records the signature of a signed payout before it is sent.
func (s *Store) MarkSubmitted(ctx context.Context, id, signature string, validUntil uint64) error {
	return s.update(ctx, id,
		bson.M{"status": types.StatusSubmitted, "pendingTxHash": signature, "pendingValidUntil": validUntil},
		nil,
		bson.M{"attempts": 1},
	)
}

// MarkCompleted sets the destination hash and closes the record in one write.
// A completed record is never reopened.
func (s *Store) MarkCompleted(ctx context.Context, id, signature string) error {
	return s.update(ctx, id,
		bson.M{"status": types.StatusCompleted, "destinationTxHash": signature, "completed": true},
		bson.M{"pendingTxHash": "", "pendingValidUntil": ""},
		nil,
	)
}

// MarkPending puts a record back in the queue once its payout can no longer land.
func (s *Store) MarkPending(ctx context.Context, id, message string) error {
	return s.update(ctx, id,
		bson.M{"status": types.StatusPending, "message": message},
		bson.M{"pendingTxHash": "", "pendingValidUntil": ""},
		nil,
	)
}

// MarkFailed parks a record for manual review.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.update(ctx, id,
		bson.M{"status": types.StatusFailed, "message": message},
		nil,
		bson.M{"attempts": 1},
	)
}

// ResetFailed re-queues a failed record. ErrNotUpdated is returned when it is not failed.
func (s *Store) ResetFailed(ctx context.Context, id string) (*types.BridgeRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc recordDoc
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "status": types.StatusFailed, "completed": false},
		bson.M{
			"$set":   bson.M{"status": types.StatusPending, "attempts": 0, "updatedAt": s.now()},
			"$unset": bson.M{"pendingTxHash": "", "pendingValidUntil": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		if _, err = s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is not failed", ErrNotUpdated, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error resetting bridge record %s: %w", id, err)
	}
	return doc.record(), nil
}
