package grading

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// gradePoints is the single grade vocabulary used for SGPA. D sits on the 4-point pass slot.
var gradePoints = map[Grade]float64{
	GradeAPlus: 9,
	GradeA:     8,
	GradeBPlus: 7,
	GradeB:     6,
	GradeC:     5,
	GradeD:     4,
	GradeF:     0,
}

// GradePoint returns the points of a grade and whether the grade is on the scale.
func GradePoint(g Grade) (float64, bool) {
	p, ok := gradePoints[g]
	return p, ok
}

// ComputeSGPA is the unweighted mean of the grade points of the graded results.
// Results without a grade are skipped; no graded result gives 0.
func ComputeSGPA(results []DerivedResult) float64 {
	points := make(stats.Float64Data, 0, len(results))
	for _, res := range results {
		if p, ok := GradePoint(res.Grade); ok {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return 0
	}
	mean, err := points.Mean()
	if err != nil {
		return 0
	}
	return mean
}

// SemesterGroup keys the records of one semester of one academic year.
type SemesterGroup struct {
	Semester     int    `json:"semester"`
	AcademicYear string `json:"academic_year"`
}

func (g SemesterGroup) less(o SemesterGroup) bool {
	if g.AcademicYear != o.AcademicYear {
		return g.AcademicYear < o.AcademicYear
	}
	return g.Semester < o.Semester
}

// SemesterEntry is a record placed in its semester.
type SemesterEntry struct {
	Group  SemesterGroup
	Record MarkRecord
}

// SemesterSummary holds the records of a group with their results.
// SGPA covers every graded result; PublishedSGPA only the published ones.
type SemesterSummary struct {
	SemesterGroup
	Records       []MarkRecord
	Results       []DerivedResult
	SGPA          float64
	PublishedSGPA float64
}

// GroupBySemester groups entries by SemesterGroup, ordered by academic year then semester.
// Records keep their input order inside a group.
func GroupBySemester(entries []SemesterEntry) []SemesterSummary {
	idx := make(map[SemesterGroup]int)
	groups := make([]SemesterSummary, 0)
	for _, e := range entries {
		i, ok := idx[e.Group]
		if !ok {
			i = len(groups)
			idx[e.Group] = i
			groups = append(groups, SemesterSummary{SemesterGroup: e.Group})
		}
		groups[i].Records = append(groups[i].Records, e.Record)
		groups[i].Results = append(groups[i].Results, ComputeDerivedResult(e.Record))
	}

	for i := range groups {
		g := &groups[i]
		g.SGPA = ComputeSGPA(g.Results)

		published := make([]DerivedResult, 0, len(g.Results))
		for _, res := range g.Results {
			if res.Status == StatusPublished {
				published = append(published, res)
			}
		}
		g.PublishedSGPA = ComputeSGPA(published)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].less(groups[j].SemesterGroup) })
	return groups
}
