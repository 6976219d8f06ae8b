package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"trtlbridge/types"
)

// legacy field -> version 1 field
var legacyRenames = bson.M{
	"adaTxHash":  "sourceTxHash",
	"adaAddress": "sourceAddress",
	"adaAmount":  "sourceAmount",
	"solAddress": "destinationAddress",
	"solAmount":  "destinationAmount",
	"solTxHash":  "destinationTxHash",
	"done":       "completed",
}

// Migrate upgrades documents written before schema versioning.
// Legacy documents carry no timestamps, they keep their relative order through _id.
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	legacy := bson.M{
		"schemaVersion": bson.M{"$exists": false},
		"adaTxHash":     bson.M{"$exists": true},
	}

	var migrated int64
	for _, done := range []bool{true, false} {
		filter := bson.M{}
		for k, v := range legacy {
			filter[k] = v
		}
		status := types.StatusPending
		if done {
			filter["done"] = true
			status = types.StatusCompleted
		} else {
			filter["done"] = bson.M{"$ne": true}
		}

		now := s.now()
		res, err := s.col.UpdateMany(ctx, filter, bson.M{
			"$rename": legacyRenames,
			"$set": bson.M{
				"schemaVersion": types.SchemaVersion,
				"status":        status,
				"attempts":      0,
				"createdAt":     now,
				"updatedAt":     now,
			},
		})
		if err != nil {
			return migrated, fmt.Errorf("cannot migrate legacy bridge records: %w", err)
		}
		migrated += res.ModifiedCount
	}

	// legacy pending documents never had the flag set
	if _, err := s.col.UpdateMany(ctx,
		bson.M{"schemaVersion": types.SchemaVersion, "completed": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"completed": false}},
	); err != nil {
		return migrated, fmt.Errorf("cannot migrate legacy bridge records: %w", err)
	}

	if migrated > 0 {
		s.logger.Info("migrated legacy bridge records", zap.Int64("count", migrated), zap.Int("schemaVersion", types.SchemaVersion))
	}
	return migrated, nil
}
