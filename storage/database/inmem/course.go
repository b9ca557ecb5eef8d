package inmemdb

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].Code != courses[j].Code {
			return courses[i].Code < courses[j].Code
		}
		return courses[i].AcademicYear < courses[j].AcademicYear
	})
	return courses
}

func (repo *courseRepository) CheckCodeUniqueness(_ context.Context, code, academicYear string, excluded ...course.Course) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.table {
		if c.Code != code || c.AcademicYear != academicYear {
			continue
		}
		var skip bool
		for _, ex := range excluded {
			if ex.ID == c.ID {
				skip = true
				break
			}
		}
		if !skip {
			return course.ErrCodeExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	repo.db.table[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.query() {
		if filter.Match(c) {
			courses = append(courses, c)
		}
	}
	if len(ordering) > 0 {
		get := func(i int, field string) string {
			c := courses[i]
			switch field {
			case "code":
				return c.Code
			case "title":
				return lower(c.Title)
			case "semester":
				return strconv.Itoa(1000 + c.Semester) // fixed width
			case "academic_year":
				return c.AcademicYear
			case "created_at":
				return c.CreatedAt.UTC().Format(time.RFC3339Nano)
			}
			return ""
		}
		sortStable(len(courses), ordering, get, func(i, j int) { courses[i], courses[j] = courses[j], courses[i] })
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[c.ID]; !ok {
		return course.Course{}, errors.Wrap(course.ErrNotFound, "updating course")
	}
	repo.db.table[c.ID] = &c
	return c, nil
}
