package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/pkg/database"
)

// translateMongoErr maps driver sentinels onto the ones services already understand.
func translateMongoErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sql.ErrNoRows
	}
	return err
}

// MongoAssignmentRepository persists assignment definitions in MongoDB.
type MongoAssignmentRepository struct {
	coll *mongo.Collection
}

// NewMongoAssignmentRepository constructs the repository.
func NewMongoAssignmentRepository(db *mongo.Database) *MongoAssignmentRepository {
	return &MongoAssignmentRepository{coll: db.Collection(database.CollectionAssignments)}
}

// Create inserts a definition, generating its identifier when absent.
func (r *MongoAssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	assignment.Attachments = nonNil(assignment.Attachments)
	assignment.AssignedTo = nonNil(assignment.AssignedTo)
	if _, err := r.coll.InsertOne(ctx, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID fetches a definition. Missing definitions yield sql.ErrNoRows.
func (r *MongoAssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&assignment); err != nil {
		return nil, translateMongoErr(err)
	}
	return &assignment, nil
}

// ListByIDs fetches several definitions at once; unknown ids are skipped.
func (r *MongoAssignmentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Assignment, error) {
	if len(ids) == 0 {
		return []models.Assignment{}, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("list assignments by ids: %w", err)
	}
	out := []models.Assignment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	return out, nil
}

// List returns definitions newest first alongside the total matching count.
func (r *MongoAssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	filter.Normalize()
	query := bson.M{}
	if filter.Subject != "" {
		query["subject"] = filter.Subject
	}
	if filter.CreatedBy != "" {
		query["created_by"] = filter.CreatedBy
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.PageSize))
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	out := []models.Assignment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode assignments: %w", err)
	}
	return out, int(total), nil
}

// MongoApplicantRepository reads the applicant directory from MongoDB.
type MongoApplicantRepository struct {
	coll *mongo.Collection
}

// NewMongoApplicantRepository constructs the repository.
func NewMongoApplicantRepository(db *mongo.Database) *MongoApplicantRepository {
	return &MongoApplicantRepository{coll: db.Collection(database.CollectionApplicants)}
}

// GetByID fetches one applicant. Missing applicants yield sql.ErrNoRows.
func (r *MongoApplicantRepository) GetByID(ctx context.Context, id string) (*models.Applicant, error) {
	var applicant models.Applicant
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&applicant); err != nil {
		return nil, translateMongoErr(err)
	}
	return &applicant, nil
}

// ListByGroupTag returns every applicant whose group tags contain tag exactly.
func (r *MongoApplicantRepository) ListByGroupTag(ctx context.Context, tag string) ([]models.Applicant, error) {
	return r.find(ctx, bson.M{"group_tags": tag})
}

// ListByIDs fetches the named applicants; unknown ids are skipped.
func (r *MongoApplicantRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Applicant, error) {
	if len(ids) == 0 {
		return []models.Applicant{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *MongoApplicantRepository) find(ctx context.Context, query bson.M) ([]models.Applicant, error) {
	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	out := []models.Applicant{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode applicants: %w", err)
	}
	return out, nil
}

// MongoTrackRepository persists per-applicant entries in MongoDB. A unique index on
// (applicant_id, assignment_id) backs idempotent appends.
type MongoTrackRepository struct {
	coll *mongo.Collection
}

// NewMongoTrackRepository constructs the repository.
func NewMongoTrackRepository(db *mongo.Database) *MongoTrackRepository {
	return &MongoTrackRepository{coll: db.Collection(database.CollectionTracks)}
}

func trackKey(applicantID, assignmentID string) bson.M {
	return bson.M{"applicant_id": applicantID, "assignment_id": assignmentID}
}

// Append inserts a fresh entry. An existing (applicant, assignment) pair is left untouched.
func (r *MongoTrackRepository) Append(ctx context.Context, entry *models.TrackEntry) error {
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
		entry.UpdatedAt = entry.CreatedAt
	}
	entry.SubmittedFiles = nonNil(entry.SubmittedFiles)
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("append track entry: %w", err)
	}
	return nil
}

// Get fetches one entry. Missing entries yield sql.ErrNoRows.
func (r *MongoTrackRepository) Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error) {
	var entry models.TrackEntry
	if err := r.coll.FindOne(ctx, trackKey(applicantID, assignmentID)).Decode(&entry); err != nil {
		return nil, translateMongoErr(err)
	}
	entry.SubmittedFiles = nonNil(entry.SubmittedFiles)
	return &entry, nil
}

// ListByApplicant returns every entry owned by the applicant, oldest first.
func (r *MongoTrackRepository) ListByApplicant(ctx context.Context, applicantID string) ([]models.TrackEntry, error) {
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "assignment_id", Value: 1}}
	return r.find(ctx, bson.M{"applicant_id": applicantID}, sort)
}

// ListByAssignment returns every entry fanned out for the assignment.
func (r *MongoTrackRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.TrackEntry, error) {
	return r.find(ctx, bson.M{"assignment_id": assignmentID}, bson.D{{Key: "applicant_id", Value: 1}})
}

func (r *MongoTrackRepository) find(ctx context.Context, query bson.M, sort bson.D) ([]models.TrackEntry, error) {
	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list track entries: %w", err)
	}
	out := []models.TrackEntry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode track entries: %w", err)
	}
	for i := range out {
		out[i].SubmittedFiles = nonNil(out[i].SubmittedFiles)
	}
	return out, nil
}

// Update writes entry back only if the stored version still equals entry.Version.
// On success entry.Version is advanced to the persisted value.
func (r *MongoTrackRepository) Update(ctx context.Context, entry *models.TrackEntry) error {
	filter := trackKey(entry.ApplicantID, entry.AssignmentID)
	filter["version"] = entry.Version
	update := bson.M{
		"$set": bson.M{
			"stage":           entry.Stage,
			"submitted_files": nonNil(entry.SubmittedFiles),
			"submitted_link":  entry.SubmittedLink,
			"submitted_note":  entry.SubmittedNote,
			"submitted_at":    entry.SubmittedAt,
			"score":           entry.Score,
			"remarks":         entry.Remarks,
			"evaluated_by":    entry.EvaluatedBy,
			"updated_at":      entry.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update track entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrStaleVersion
	}
	entry.Version++
	return nil
}
