package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
)

const marksColumns = `student_id, course_id, internal_marks, mid_term_marks, end_term_marks,
	internal_published, mid_term_published, end_term_published, updated_by, created_at, updated_at`

// marksRow maps the marks table: absent marks are NULL.
type marksRow struct {
	StudentID         string       `db:"student_id"`
	CourseID          string       `db:"course_id"`
	InternalMarks     null.Float64 `db:"internal_marks"`
	MidTermMarks      null.Float64 `db:"mid_term_marks"`
	EndTermMarks      null.Float64 `db:"end_term_marks"`
	InternalPublished bool         `db:"internal_published"`
	MidTermPublished  bool         `db:"mid_term_published"`
	EndTermPublished  bool         `db:"end_term_published"`
	UpdatedBy         string       `db:"updated_by"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

func markToNull(m grading.Mark) null.Float64 { return null.Float64FromPtr(m.Ptr()) }

func nullToMark(f null.Float64) grading.Mark { return grading.MarkFromPtr(f.Ptr()) }

func newMarksRow(rec marks.Record) marksRow {
	return marksRow{
		StudentID:         rec.StudentID,
		CourseID:          rec.CourseID,
		InternalMarks:     markToNull(rec.Internal.Marks),
		MidTermMarks:      markToNull(rec.MidTerm.Marks),
		EndTermMarks:      markToNull(rec.EndTerm.Marks),
		InternalPublished: rec.Internal.Published,
		MidTermPublished:  rec.MidTerm.Published,
		EndTermPublished:  rec.EndTerm.Published,
		UpdatedBy:         rec.UpdatedBy,
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}
}

func (row marksRow) toRecord() marks.Record {
	rec := marks.Record{
		MarkRecord: grading.MarkRecord{
			StudentID: row.StudentID,
			CourseID:  row.CourseID,
			Internal:  grading.ComponentMarks{Marks: nullToMark(row.InternalMarks), Published: row.InternalPublished},
			MidTerm:   grading.ComponentMarks{Marks: nullToMark(row.MidTermMarks), Published: row.MidTermPublished},
			EndTerm:   grading.ComponentMarks{Marks: nullToMark(row.EndTermMarks), Published: row.EndTermPublished},
		},
		UpdatedBy: row.UpdatedBy,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	rec.Normalize()
	return rec
}

type marksRepository struct {
	db *sqlx.DB
}

var _ marks.Repository = (*marksRepository)(nil)

func NewMarksRepository(db *sqlx.DB) marks.Repository {
	return &marksRepository{db: db}
}

func (repo *marksRepository) GetRecord(ctx context.Context, studentID, courseID string) (marks.Record, error) {
	return getRecord(ctx, repo.db, studentID, courseID)
}

// getter is satisfied by *sqlx.DB and *sqlx.Tx.
type getter interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

func getRecord(ctx context.Context, q getter, studentID, courseID string) (marks.Record, error) {
	var row marksRow
	query := q.Rebind("SELECT " + marksColumns + " FROM marks WHERE student_id = ? AND course_id = ?")
	if err := q.GetContext(ctx, &row, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return marks.Record{}, marks.ErrNotFound
		}
		return marks.Record{}, errors.Wrap(err, "getting marks record")
	}
	return row.toRecord(), nil
}

func (repo *marksRepository) QueryRecords(ctx context.Context, filter *marks.QueryFilter) ([]marks.Record, error) {
	w := new(where)
	if filter != nil {
		if err := w.in("course_id", filter.CourseIDs); err != nil {
			return nil, err
		}
		if err := w.in("student_id", filter.StudentIDs); err != nil {
			return nil, err
		}
	}

	rows := make([]marksRow, 0)
	q := repo.db.Rebind("SELECT " + marksColumns + " FROM marks" + w.String() + " ORDER BY course_id ASC, student_id ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying marks records")
	}
	recs := make([]marks.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toRecord())
	}
	return recs, nil
}

// upsert keeps created_at of an existing row.
const upsertMarks = `INSERT INTO marks (` + marksColumns + `)
	VALUES (:student_id, :course_id, :internal_marks, :mid_term_marks, :end_term_marks,
		:internal_published, :mid_term_published, :end_term_published, :updated_by, :created_at, :updated_at)
	ON CONFLICT (student_id, course_id) DO UPDATE SET
		internal_marks = excluded.internal_marks,
		mid_term_marks = excluded.mid_term_marks,
		end_term_marks = excluded.end_term_marks,
		internal_published = excluded.internal_published,
		mid_term_published = excluded.mid_term_published,
		end_term_published = excluded.end_term_published,
		updated_by = excluded.updated_by,
		updated_at = excluded.updated_at`

func save(ctx context.Context, tx *sqlx.Tx, rec marks.Record) error {
	rec.Normalize()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	if _, err := tx.NamedExecContext(ctx, upsertMarks, newMarksRow(rec)); err != nil {
		return errors.Wrap(err, "saving marks record")
	}
	return nil
}

func (repo *marksRepository) SaveRecord(ctx context.Context, rec marks.Record) (marks.Record, error) {
	var saved marks.Record
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := save(ctx, tx, rec); err != nil {
			return err
		}
		var err error
		saved, err = getRecord(ctx, tx, rec.StudentID, rec.CourseID)
		return err
	})
	if err != nil {
		return marks.Record{}, err
	}
	return saved, nil
}

func (repo *marksRepository) SaveRecords(ctx context.Context, recs []marks.Record) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, rec := range recs {
			if err := save(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
