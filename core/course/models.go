package course

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/grading"
)

// Course is taught by one faculty member in one semester of an academic year.
type Course struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Semester     int       `json:"semester"`
	AcademicYear string    `json:"academic_year"`
	FacultyID    string    `json:"faculty_id"`
	Credits      int       `json:"credits"`    // informative, SGPA is unweighted
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Group is the semester the course's marks count towards.
func (c Course) Group() grading.SemesterGroup {
	return grading.SemesterGroup{Semester: c.Semester, AcademicYear: c.AcademicYear}
}

// TaughtBy reports whether userID is the course's faculty member.
func (c Course) TaughtBy(userID string) bool {
	return c.FacultyID != "" && c.FacultyID == userID
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code         string `json:"code" validate:"required,max=32,alphanum_"`
	Title        string `json:"title" validate:"required,max=255"`
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	FacultyID    string `json:"faculty_id"`
	Credits      int    `json:"credits" validate:"min=0,max=30"`
}

func (nc *NewCourse) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nc.Code = strings.ToUpper(core.CleanString(nc.Code))
	nc.Title = core.CleanString(nc.Title)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	nc.FacultyID = core.CleanString(nc.FacultyID)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if err := svc.CheckUniqueness(ctx, nc.Code, nc.AcademicYear); err != nil {
		return err
	}
	return svc.CheckFaculty(ctx, nc.FacultyID)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Blank fields keep their current value.
type UpdateCourse struct {
	Code         string  `json:"code" validate:"omitempty,max=32,alphanum_"`
	Title        string  `json:"title" validate:"max=255"`
	Semester     int     `json:"semester" validate:"omitempty,min=1,max=12"`
	AcademicYear string  `json:"academic_year" validate:"omitempty,academic_year"`
	FacultyID    *string `json:"faculty_id"`
	Credits      *int    `json:"credits" validate:"omitempty,min=0,max=30"`
}

func (uc *UpdateCourse) Validate(ctx context.Context, orig Course, validate *validator.Validate, svc ServiceInterface) error {
	if code := strings.ToUpper(core.CleanString(uc.Code)); code != "" {
		uc.Code = code
	} else {
		uc.Code = orig.Code
	}
	if title := core.CleanString(uc.Title); title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	if uc.Semester == 0 {
		uc.Semester = orig.Semester
	}
	if year := core.CleanString(uc.AcademicYear); year != "" {
		uc.AcademicYear = year
	} else {
		uc.AcademicYear = orig.AcademicYear
	}

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if err := svc.CheckUniqueness(ctx, uc.Code, uc.AcademicYear, orig); err != nil {
		return err
	}
	if uc.FacultyID != nil {
		fid := core.CleanString(*uc.FacultyID)
		uc.FacultyID = &fid
		return svc.CheckFaculty(ctx, fid)
	}
	return nil
}

// QueryFilter fields are ANDed.
type QueryFilter struct {
	IDs          []string `query:"id"`
	FacultyID    string   `query:"faculty_id"`
	Semester     int      `query:"semester"`
	AcademicYear string   `query:"academic_year"`
	Search       string   `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.FacultyID = core.CleanString(qf.FacultyID)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether c passes the filter. Stores without a query language filter with it.
func (qf *QueryFilter) Match(c Course) bool {
	if qf == nil {
		return true
	}
	if qf.IDs != nil {
		var found bool
		for _, id := range qf.IDs {
			if id == c.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.FacultyID != "" && c.FacultyID != qf.FacultyID {
		return false
	}
	if qf.Semester != 0 && c.Semester != qf.Semester {
		return false
	}
	if qf.AcademicYear != "" && c.AcademicYear != qf.AcademicYear {
		return false
	}
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(c.Code), s) || strings.Contains(strings.ToLower(c.Title), s)) {
			return false
		}
	}
	return true
}
