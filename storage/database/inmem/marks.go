package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/matokeo/core/marks"
)

type marksRepository struct {
	db *marksTable
}

var _ marks.Repository = (*marksRepository)(nil)

func NewMarksRepository(db *DB) marks.Repository {
	return &marksRepository{db: db.marks}
}

func (repo *marksRepository) GetRecord(_ context.Context, studentID, courseID string) (marks.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[marksKey{studentID: studentID, courseID: courseID}]; ok {
		return *rec, nil
	}
	return marks.Record{}, marks.ErrNotFound
}

func (repo *marksRepository) QueryRecords(_ context.Context, filter *marks.QueryFilter) ([]marks.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]marks.Record, 0)
	for _, rec := range repo.db.table {
		if filter.Match(*rec) {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CourseID != recs[j].CourseID {
			return recs[i].CourseID < recs[j].CourseID
		}
		return recs[i].StudentID < recs[j].StudentID
	})
	return recs, nil
}

func (repo *marksRepository) save(rec marks.Record) marks.Record {
	rec.Normalize()
	key := marksKey{studentID: rec.StudentID, courseID: rec.CourseID}
	if orig, ok := repo.db.table[key]; ok {
		rec.CreatedAt = orig.CreatedAt
	}
	repo.db.table[key] = &rec
	return rec
}

func (repo *marksRepository) SaveRecord(_ context.Context, rec marks.Record) (marks.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	return repo.save(rec), nil
}

func (repo *marksRepository) SaveRecords(_ context.Context, recs []marks.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, rec := range recs {
		repo.save(rec)
	}
	return nil
}
