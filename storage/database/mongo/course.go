package mongorepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
)

type courseDoc struct {
	ID           string    `bson:"_id"`
	Code         string    `bson:"code"`
	Title        string    `bson:"title"`
	Semester     int       `bson:"semester"`
	AcademicYear string    `bson:"academic_year"`
	FacultyID    string    `bson:"faculty_id,omitempty"`
	Credits      int       `bson:"credits"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newCourseDoc(c course.Course) courseDoc {
	return courseDoc{
		ID:           c.ID,
		Code:         c.Code,
		Title:        c.Title,
		Semester:     c.Semester,
		AcademicYear: c.AcademicYear,
		FacultyID:    c.FacultyID,
		Credits:      c.Credits,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (doc courseDoc) toCourse() course.Course {
	return course.Course{
		ID:           doc.ID,
		Code:         doc.Code,
		Title:        doc.Title,
		Semester:     doc.Semester,
		AcademicYear: doc.AcademicYear,
		FacultyID:    doc.FacultyID,
		Credits:      doc.Credits,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	coll *mongo.Collection
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *mongo.Database) course.Repository {
	return &courseRepository{coll: db.Collection(coursesCollection)}
}

func (repo *courseRepository) CheckCodeUniqueness(ctx context.Context, code, academicYear string, excluded ...course.Course) error {
	filter := bson.M{"code": code, "academic_year": academicYear}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, c := range excluded {
			ids = append(ids, c.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}
	n, err := repo.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrap(err, "checking code uniqueness")
	}
	if n > 0 {
		return course.ErrCodeExists
	}
	return nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.New().String()
	if _, err := repo.coll.InsertOne(ctx, newCourseDoc(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	query := bson.M{}
	if filter != nil {
		if filter.IDs != nil {
			query["_id"] = bson.M{"$in": filter.IDs}
		}
		if filter.FacultyID != "" {
			query["faculty_id"] = filter.FacultyID
		}
		if filter.Semester != 0 {
			query["semester"] = filter.Semester
		}
		if filter.AcademicYear != "" {
			query["academic_year"] = filter.AcademicYear
		}
		if filter.Search != "" {
			re := containsRegex(filter.Search)
			query["$or"] = bson.A{bson.M{"code": re}, bson.M{"title": re}}
		}
	}

	opts := options.Find().SetSort(sortOf(ordering, bson.E{Key: "code", Value: 1}, bson.E{Key: "academic_year", Value: 1}))
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	docs := make([]courseDoc, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding courses")
	}
	courses := make([]course.Course, 0, len(docs))
	for _, doc := range docs {
		courses = append(courses, doc.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var doc courseDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return doc.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, newCourseDoc(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if res.MatchedCount == 0 {
		return course.Course{}, errors.Wrap(course.ErrNotFound, "updating course")
	}
	return c, nil
}
