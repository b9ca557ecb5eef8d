package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
)

type componentDoc struct {
	Marks     *float64 `bson:"marks"` // null when absent
	Published bool     `bson:"published"`
}

type marksDoc struct {
	StudentID string       `bson:"student_id"`
	CourseID  string       `bson:"course_id"`
	Internal  componentDoc `bson:"internal"`
	MidTerm   componentDoc `bson:"mid_term"`
	EndTerm   componentDoc `bson:"end_term"`
	UpdatedBy string       `bson:"updated_by"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

func newComponentDoc(cm grading.ComponentMarks) componentDoc {
	return componentDoc{Marks: cm.Marks.Ptr(), Published: cm.Published}
}

func (doc componentDoc) toComponent() grading.ComponentMarks {
	return grading.ComponentMarks{Marks: grading.MarkFromPtr(doc.Marks), Published: doc.Published}
}

func newMarksDoc(rec marks.Record) marksDoc {
	return marksDoc{
		StudentID: rec.StudentID,
		CourseID:  rec.CourseID,
		Internal:  newComponentDoc(rec.Internal),
		MidTerm:   newComponentDoc(rec.MidTerm),
		EndTerm:   newComponentDoc(rec.EndTerm),
		UpdatedBy: rec.UpdatedBy,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

func (doc marksDoc) toRecord() marks.Record {
	rec := marks.Record{
		MarkRecord: grading.MarkRecord{
			StudentID: doc.StudentID,
			CourseID:  doc.CourseID,
			Internal:  doc.Internal.toComponent(),
			MidTerm:   doc.MidTerm.toComponent(),
			EndTerm:   doc.EndTerm.toComponent(),
		},
		UpdatedBy: doc.UpdatedBy,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	rec.Normalize()
	return rec
}

type marksRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ marks.Repository = (*marksRepository)(nil)

func NewMarksRepository(client *mongo.Client, db *mongo.Database) marks.Repository {
	return &marksRepository{client: client, coll: db.Collection(marksCollection)}
}

func keyOf(studentID, courseID string) bson.M {
	return bson.M{"student_id": studentID, "course_id": courseID}
}

func (repo *marksRepository) GetRecord(ctx context.Context, studentID, courseID string) (marks.Record, error) {
	var doc marksDoc
	if err := repo.coll.FindOne(ctx, keyOf(studentID, courseID)).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return marks.Record{}, marks.ErrNotFound
		}
		return marks.Record{}, errors.Wrap(err, "getting marks record")
	}
	return doc.toRecord(), nil
}

func (repo *marksRepository) QueryRecords(ctx context.Context, filter *marks.QueryFilter) ([]marks.Record, error) {
	query := bson.M{}
	if filter != nil {
		if filter.CourseIDs != nil {
			query["course_id"] = bson.M{"$in": filter.CourseIDs}
		}
		if filter.StudentIDs != nil {
			query["student_id"] = bson.M{"$in": filter.StudentIDs}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "course_id", Value: 1}, {Key: "student_id", Value: 1}})
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying marks records")
	}
	docs := make([]marksDoc, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding marks records")
	}
	recs := make([]marks.Record, 0, len(docs))
	for _, doc := range docs {
		recs = append(recs, doc.toRecord())
	}
	return recs, nil
}

// save upserts rec; created_at is only written on insert.
func (repo *marksRepository) save(ctx context.Context, rec marks.Record) error {
	rec.Normalize()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	doc := newMarksDoc(rec)
	update := bson.M{
		"$set": bson.M{
			"internal":   doc.Internal,
			"mid_term":   doc.MidTerm,
			"end_term":   doc.EndTerm,
			"updated_by": doc.UpdatedBy,
			"updated_at": doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": doc.CreatedAt},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := repo.coll.UpdateOne(ctx, keyOf(rec.StudentID, rec.CourseID), update, opts); err != nil {
		return errors.Wrap(err, "saving marks record")
	}
	return nil
}

func (repo *marksRepository) SaveRecord(ctx context.Context, rec marks.Record) (marks.Record, error) {
	if err := repo.save(ctx, rec); err != nil {
		return marks.Record{}, err
	}
	return repo.GetRecord(ctx, rec.StudentID, rec.CourseID)
}

func (repo *marksRepository) SaveRecords(ctx context.Context, recs []marks.Record) error {
	return withTransaction(ctx, repo.client, func(sessCtx mongo.SessionContext) error {
		for _, rec := range recs {
			if err := repo.save(sessCtx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
