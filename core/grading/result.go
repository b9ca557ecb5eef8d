package grading

import "encoding/json"

// Grade is a letter grade; the zero value means no grade.
type Grade string

const (
	GradeNone  Grade = ""
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// Grades lists the scale from best to worst.
var Grades = []Grade{GradeAPlus, GradeA, GradeBPlus, GradeB, GradeC, GradeD, GradeF}

var gradeThresholds = []struct {
	min   float64
	grade Grade
}{
	{90, GradeAPlus},
	{80, GradeA},
	{70, GradeBPlus},
	{60, GradeB},
	{50, GradeC},
	{40, GradeD},
}

// GradeFor maps a total to its letter, evaluated highest threshold first.
func GradeFor(total Mark) Grade {
	v, ok := total.Value()
	if !ok {
		return GradeNone
	}
	for _, th := range gradeThresholds {
		if v >= th.min {
			return th.grade
		}
	}
	return GradeF
}

// MarshalJSON encodes GradeNone as null.
func (g Grade) MarshalJSON() ([]byte, error) {
	if g == GradeNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

func (g *Grade) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*g = GradeNone
	} else {
		*g = Grade(*s)
	}
	return nil
}

// Status is the overall publication status of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
)

// DerivedResult is computed from a MarkRecord on every read and never stored.
type DerivedResult struct {
	TotalMarks Mark   `json:"total_marks"`
	Grade      Grade  `json:"grade"`
	Status     Status `json:"status"`
}

// ComputeDerivedResult totals the three components (all or nothing), grades the total and
// derives the status. Total and grade are computed whatever the publication flags say;
// hiding them is the job of StudentView.
func ComputeDerivedResult(r MarkRecord) DerivedResult {
	res := DerivedResult{Status: StatusPending}

	var sum float64
	complete := true
	for _, c := range Components {
		v, ok := r.Component(c).Marks.Value()
		if !ok {
			complete = false
			break
		}
		sum += v
	}
	if complete {
		res.TotalMarks = NewMark(sum)
		res.Grade = GradeFor(res.TotalMarks)
		if r.AllPublished() {
			res.Status = StatusPublished
		}
	}
	return res
}
