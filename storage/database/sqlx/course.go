package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
)

const courseColumns = "id, code, title, semester, academic_year, faculty_id, credits, created_at, updated_at"

type courseRow struct {
	ID           string      `db:"id"`
	Code         string      `db:"code"`
	Title        string      `db:"title"`
	Semester     int         `db:"semester"`
	AcademicYear string      `db:"academic_year"`
	FacultyID    null.String `db:"faculty_id"` // NULL while unassigned
	Credits      int         `db:"credits"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func newCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:           c.ID,
		Code:         c.Code,
		Title:        c.Title,
		Semester:     c.Semester,
		AcademicYear: c.AcademicYear,
		FacultyID:    optString(c.FacultyID),
		Credits:      c.Credits,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:           row.ID,
		Code:         row.Code,
		Title:        row.Title,
		Semester:     row.Semester,
		AcademicYear: row.AcademicYear,
		FacultyID:    row.FacultyID.String,
		Credits:      row.Credits,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CheckCodeUniqueness(ctx context.Context, code, academicYear string, excluded ...course.Course) error {
	w := new(where)
	w.add("code = ?", code)
	w.add("academic_year = ?", academicYear)
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, c := range excluded {
			ids = append(ids, c.ID)
		}
		clause, args, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return errors.Wrap(err, "expanding NOT IN clause")
		}
		w.add(clause, args...)
	}

	var id string
	q := repo.db.Rebind("SELECT id FROM courses" + w.String() + " LIMIT 1")
	if err := repo.db.GetContext(ctx, &id, q, w.args...); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return course.ErrCodeExists
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.New().String()
	q := `INSERT INTO courses (` + courseColumns + `)
		VALUES (:id, :code, :title, :semester, :academic_year, :faculty_id, :credits, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	w := new(where)
	if filter != nil {
		if err := w.in("id", filter.IDs); err != nil {
			return nil, err
		}
		if filter.FacultyID != "" {
			w.add("faculty_id = ?", filter.FacultyID)
		}
		if filter.Semester != 0 {
			w.add("semester = ?", filter.Semester)
		}
		if filter.AcademicYear != "" {
			w.add("academic_year = ?", filter.AcademicYear)
		}
		if filter.Search != "" {
			s := likeContains(filter.Search)
			w.add(`(LOWER(code) LIKE ? ESCAPE '\' OR LOWER(title) LIKE ? ESCAPE '\')`, s, s)
		}
	}

	rows := make([]courseRow, 0)
	q := repo.db.Rebind("SELECT " + courseColumns + " FROM courses" + w.String() + orderBy(ordering, "code ASC, academic_year ASC"))
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	q := repo.db.Rebind("SELECT " + courseColumns + " FROM courses WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `UPDATE courses SET code = :code, title = :title, semester = :semester, academic_year = :academic_year,
		faculty_id = :faculty_id, credits = :credits, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if err := checkAffected(res, course.ErrNotFound); err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return c, nil
}
