// Package marks runs mark entry and publication on top of the grading engine:
// who may enter or publish what, persistence, result views and notifications.
package marks

import (
	"time"

	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/grading"
)

// Record is a grading.MarkRecord as stored.
type Record struct {
	grading.MarkRecord
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// MarkEntry carries the marks typed in for one student. Absent components are left untouched.
type MarkEntry struct {
	Internal grading.Mark `json:"internal_marks"`
	MidTerm  grading.Mark `json:"mid_term_marks"`
	EndTerm  grading.Mark `json:"end_term_marks"`
}

// Get returns the entered marks of a component.
func (me MarkEntry) Get(c grading.Component) grading.Mark {
	switch c {
	case grading.Internal:
		return me.Internal
	case grading.MidTerm:
		return me.MidTerm
	case grading.EndTerm:
		return me.EndTerm
	}
	return grading.Mark{}
}

// IsEmpty reports whether no component holds a mark.
func (me MarkEntry) IsEmpty() bool {
	return !(me.Internal.Valid() || me.MidTerm.Valid() || me.EndTerm.Valid())
}

// PublishRequest toggles the publication of one component.
type PublishRequest struct {
	Component string `json:"component" validate:"required"`
	Published *bool  `json:"published" validate:"required"`
}

// QueryFilter fields are ANDed.
type QueryFilter struct {
	CourseIDs  []string
	StudentIDs []string
}

// Match reports whether r passes the filter. Stores without a query language filter with it.
func (qf *QueryFilter) Match(r Record) bool {
	if qf == nil {
		return true
	}
	return (qf.CourseIDs == nil || contains(qf.CourseIDs, r.CourseID)) &&
		(qf.StudentIDs == nil || contains(qf.StudentIDs, r.StudentID))
}

// ResultRow is a record with everything derived from it, as seen by faculty & admins.
type ResultRow struct {
	Record
	Result     grading.DerivedResult `json:"result"`
	EntryState grading.EntryState    `json:"entry_state"`
	Student    StudentInfo           `json:"student"`
}

// StudentInfo is the public part of a student's account.
type StudentInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// CourseSummary aggregates the totals of a course.
// Statistics cover complete records only; they are zero when none is complete.
type CourseSummary struct {
	Records      int                   `json:"records"`
	Complete     int                   `json:"complete"`
	Published    int                   `json:"published"`
	Mean         float64               `json:"mean"`
	Median       float64               `json:"median"`
	Min          float64               `json:"min"`
	Max          float64               `json:"max"`
	StdDev       float64               `json:"std_dev"`
	Distribution map[grading.Grade]int `json:"distribution"`
}

// CourseResults is the faculty/admin results sheet of a course.
type CourseResults struct {
	Course  course.Course `json:"course"`
	Rows    []ResultRow   `json:"rows"`
	Summary CourseSummary `json:"summary"`
}

// CourseResult is one course in a student's results.
type CourseResult struct {
	Course course.Course       `json:"course"`
	View   grading.StudentView `json:"result"`
}

// SemesterResults groups a student's results of one semester.
type SemesterResults struct {
	grading.SemesterGroup
	Results []CourseResult `json:"results"`
	SGPA    float64        `json:"sgpa"`
}

// StudentResults is a student's transcript. Masked reports whether pending marks were withheld.
type StudentResults struct {
	Student   StudentInfo       `json:"student"`
	Masked    bool              `json:"masked"`
	Semesters []SemesterResults `json:"semesters"`
}

// PublishReport tells what a bulk publication changed.
// Skipped lists the students whose marks for the component were never entered.
type PublishReport struct {
	Component grading.Component `json:"component"`
	Published bool              `json:"published"`
	Updated   int               `json:"updated"`
	Skipped   []string          `json:"skipped"`
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
