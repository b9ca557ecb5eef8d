package grading

// StudentView is what a student may see of one MarkRecord.
// Internal and mid-term marks follow their own flag. End-term marks, total and grade
// stay hidden until the whole record is published.
type StudentView struct {
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	Internal   Mark   `json:"internal_marks"`
	MidTerm    Mark   `json:"mid_term_marks"`
	EndTerm    Mark   `json:"end_term_marks"`
	TotalMarks Mark   `json:"total_marks"`
	Grade      Grade  `json:"grade"`
	Status     Status `json:"status"`
}

// NewStudentView masks the record for the student portal.
func NewStudentView(r MarkRecord) StudentView {
	res := ComputeDerivedResult(r)
	v := StudentView{
		StudentID: r.StudentID,
		CourseID:  r.CourseID,
		Internal:  r.Internal.Visible(),
		MidTerm:   r.MidTerm.Visible(),
		Status:    res.Status,
	}
	if res.Status == StatusPublished {
		v.EndTerm = r.EndTerm.Marks
		v.TotalMarks = res.TotalMarks
		v.Grade = res.Grade
	}
	return v
}

// NewFullView is the unmasked counterpart of NewStudentView, for staff.
func NewFullView(r MarkRecord) StudentView {
	res := ComputeDerivedResult(r)
	return StudentView{
		StudentID:  r.StudentID,
		CourseID:   r.CourseID,
		Internal:   r.Internal.Marks,
		MidTerm:    r.MidTerm.Marks,
		EndTerm:    r.EndTerm.Marks,
		TotalMarks: res.TotalMarks,
		Grade:      res.Grade,
		Status:     res.Status,
	}
}
