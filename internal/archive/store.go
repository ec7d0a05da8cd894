package archive

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sfex/internal/constants"
	"sfex/pkg/metrics"
)

type Repository interface {
	Save(ctx context.Context, file ArchivedFile) error
	Get(ctx context.Context, fileID string) (*ArchivedFile, error)
	CountByVendor(ctx context.Context, vendorID string) (int64, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection(constants.ArchiveCollection),
	}
}

// Save upserts on file_id so replaying a message never produces a
// duplicate archive record.
func (r *MongoDBRepository) Save(ctx context.Context, file ArchivedFile) error {
	filter := bson.M{"file_id": file.FileID}
	opts := options.Replace().SetUpsert(true)

	_, err := r.collection.ReplaceOne(ctx, filter, file, opts)
	if err != nil {
		metrics.ArchiveWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save archived file %s: %w", file.FileID, err)
	}

	metrics.ArchiveWritesTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *MongoDBRepository) Get(ctx context.Context, fileID string) (*ArchivedFile, error) {
	var file ArchivedFile
	err := r.collection.FindOne(ctx, bson.M{"file_id": fileID}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find archived file %s: %w", fileID, err)
	}
	return &file, nil
}

func (r *MongoDBRepository) CountByVendor(ctx context.Context, vendorID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"vendor_id": vendorID})
	if err != nil {
		return 0, fmt.Errorf("failed to count archived files for vendor %s: %w", vendorID, err)
	}
	return count, nil
}
