package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("course not found")
	ErrCodeExists = errors.New("a course with this code already exists for this academic year")
	ErrNotFaculty = errors.New("user is not a faculty member")

	// OrderingFields are the fields courses can be ordered by.
	OrderingFields = []string{"code", "title", "semester", "academic_year", "created_at"}
)

type (
	Repository interface {
		// CheckCodeUniqueness returns ErrCodeExists when (code, academicYear) is taken by a course not in excluded.
		CheckCodeUniqueness(ctx context.Context, code, academicYear string, excluded ...Course) error
		CreateCourse(ctx context.Context, c Course) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, code, academicYear string, excluded ...Course) error
		CheckFaculty(ctx context.Context, facultyID string) error
		Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Get(ctx context.Context, id string) (Course, error)
		GetByIDs(ctx context.Context, ids ...string) (map[string]Course, error)
		Update(ctx context.Context, actor user.User, c Course, uc UpdateCourse) (Course, error)
	}

	Service struct {
		repo   Repository
		usrSvc user.ServiceInterface
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, usrSvc user.ServiceInterface) *Service {
	return &Service{repo: repo, usrSvc: usrSvc}
}

func (svc *Service) CheckUniqueness(ctx context.Context, code, academicYear string, excluded ...Course) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, academicYear, excluded...); err != nil {
		if errors.Cause(err) == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return nil
}

// CheckFaculty accepts a blank id (unassigned course) or the id of an active faculty member.
func (svc *Service) CheckFaculty(ctx context.Context, facultyID string) error {
	if facultyID == "" {
		return nil
	}
	usr, err := svc.usrSvc.GetByID(ctx, facultyID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding faculty by ID")
	}
	if err != nil || !usr.IsActive || !usr.IsFaculty() {
		return core.NewValidationError(ErrNotFaculty, core.FieldError{Field: "faculty_id", Error: ErrNotFaculty.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if !actor.IsAdmin() {
		return Course{}, core.ErrPermissionDenied
	}
	now := time.Now().UTC()
	c := Course{
		Code:         nc.Code,
		Title:        nc.Title,
		Semester:     nc.Semester,
		AcademicYear: nc.AcademicYear,
		FacultyID:    nc.FacultyID,
		Credits:      nc.Credits,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateCourse(ctx, c)
}

// Query lists courses for admins and faculty. Faculty members only ever see the courses they teach.
func (svc *Service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsFaculty():
		if filter == nil {
			filter = new(QueryFilter)
		}
		filter.FacultyID = actor.ID
	default:
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryCourses(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	if id == "" {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, id)
}

// GetByIDs returns the existing courses among ids, keyed by ID.
func (svc *Service) GetByIDs(ctx context.Context, ids ...string) (map[string]Course, error) {
	res := make(map[string]Course, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	courses, err := svc.repo.QueryCourses(ctx, &QueryFilter{IDs: ids}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	for _, c := range courses {
		res[c.ID] = c
	}
	return res, nil
}

// Update applies uc (already validated against c) onto c.
func (svc *Service) Update(ctx context.Context, actor user.User, c Course, uc UpdateCourse) (Course, error) {
	if !actor.IsAdmin() {
		return Course{}, core.ErrPermissionDenied
	}
	c.Code = uc.Code
	c.Title = uc.Title
	c.Semester = uc.Semester
	c.AcademicYear = uc.AcademicYear
	if uc.FacultyID != nil {
		c.FacultyID = *uc.FacultyID
	}
	if uc.Credits != nil {
		c.Credits = *uc.Credits
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}
