package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/tests"
)

func m(v float64) grading.Mark { return grading.NewMark(v) }

func Test_marksApi_enter(t *testing.T) {
	fx := setup(t)
	admin := testutil.CreateAdmin(t, fx.usrRepo, "Admin", "admin")
	faculty := testutil.CreateFaculty(t, fx.usrRepo, "Teacher", "teacher")
	other := testutil.CreateFaculty(t, fx.usrRepo, "Other", "other")
	student := testutil.CreateStudent(t, fx.usrRepo, "Hero", "hero")
	crs := testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro", 1, "2023-2024", faculty.ID)

	path := "/api/courses/" + crs.ID + "/marks/" + student.ID
	facultyToken := fx.getToken(t, faculty)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "Auth required", path: path, body: []byte(`{"internal_marks": 15}`), wantCode: http.StatusUnauthorized},
		{
			name: "Students not allowed", path: path, token: fx.getToken(t, student),
			body: []byte(`{"internal_marks": 15}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Not the course's faculty", path: path, token: fx.getToken(t, other),
			body: []byte(`{"internal_marks": 15}`), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Unknown course", path: "/api/courses/lol/marks/" + student.ID, token: facultyToken,
			body: []byte(`{"internal_marks": 15}`), wantCode: http.StatusNotFound,
		},
		{
			name: "Unknown student", path: "/api/courses/" + crs.ID + "/marks/" + other.ID, token: facultyToken,
			body: []byte(`{"internal_marks": 15}`), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: marks.ErrStudentNotFound.Error()}),
		},
		{
			name: "Out of range", path: path, token: facultyToken,
			body: []byte(`{"internal_marks": 21, "end_term_marks": -1}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"internal_marks": "marks must be between 0 and 20",
				"end_term_marks": "marks must be between 0 and 50",
			}),
		},
		{name: "Nothing entered", path: path, token: facultyToken, body: []byte(`{}`), wantCode: http.StatusBadRequest},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
	}
	runHTTPTests(t, fx.app, tests)

	t.Run("Partial then full entry", func(t *testing.T) {
		rec := fx.do(http.MethodPut, path, facultyToken, []byte(`{"internal_marks": 15, "mid_term_marks": "25"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var row marks.ResultRow
		unmarshal(t, rec, &row)
		assert.Equal(t, grading.EntryPartiallyEntered, row.EntryState)
		assert.False(t, row.Result.TotalMarks.Valid())
		assert.Equal(t, student.Name, row.Student.Name)

		rec = fx.do(http.MethodPut, path, fx.getToken(t, admin), []byte(`{"end_term_marks": 45.5}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &row)
		assert.Equal(t, grading.EntryFullyEntered, row.EntryState)
		assert.Equal(t, "85.5", row.Result.TotalMarks.String())
		assert.Equal(t, grading.GradeA, row.Result.Grade)
		assert.Equal(t, grading.StatusPending, row.Result.Status)
		assert.Equal(t, admin.ID, row.UpdatedBy)
	})
}

func Test_marksApi_publish(t *testing.T) {
	fx := setup(t)
	admin := testutil.CreateAdmin(t, fx.usrRepo, "Admin", "admin")
	faculty := testutil.CreateFaculty(t, fx.usrRepo, "Teacher", "teacher")
	student := testutil.CreateStudent(t, fx.usrRepo, "Hero", "hero")
	lazy := testutil.CreateStudent(t, fx.usrRepo, "Lazy", "lazy")
	crs := testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro", 1, "2023-2024", faculty.ID)
	testutil.SaveMarks(t, fx.mrkRepo, student.ID, crs.ID, m(15), m(25), m(45))
	testutil.SaveMarks(t, fx.mrkRepo, lazy.ID, crs.ID, m(10), grading.Mark{}, grading.Mark{})

	adminToken := fx.getToken(t, admin)
	one := "/api/courses/" + crs.ID + "/marks/" + student.ID + "/publish"
	all := "/api/courses/" + crs.ID + "/publish"

	tests := []httpTest{
		{
			name: "Faculty cannot publish", method: http.MethodPut, path: one, token: fx.getToken(t, faculty),
			body: []byte(`{"component": "internal", "published": true}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Unknown component", method: http.MethodPut, path: one, token: adminToken,
			body: []byte(`{"component": "final", "published": true}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"component": grading.ErrUnknownComponent.Error()}),
		},
		{
			name: "Missing flag", method: http.MethodPut, path: one, token: adminToken,
			body: []byte(`{"component": "internal"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Absent marks", method: http.MethodPut, path: "/api/courses/" + crs.ID + "/marks/" + lazy.ID + "/publish", token: adminToken,
			body: []byte(`{"component": "mid_term", "published": true}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"component": grading.ErrPublishAbsent.Error()}),
		},
	}
	runHTTPTests(t, fx.app, tests)

	t.Run("Publish one component", func(t *testing.T) {
		rec := fx.do(http.MethodPut, one, adminToken, []byte(`{"component": "mid-term", "published": true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var row marks.ResultRow
		unmarshal(t, rec, &row)
		assert.True(t, row.MidTerm.Published)
		assert.Equal(t, grading.StatusPending, row.Result.Status)
		assert.Empty(t, fx.mailSvc.Sent())
	})

	t.Run("Publish course", func(t *testing.T) {
		for _, comp := range []string{"internal", "end_term"} {
			rec := fx.do(http.MethodPost, all, adminToken, []byte(`{"component": "`+comp+`", "published": true}`))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
		rec := fx.do(http.MethodPost, all, adminToken, []byte(`{"component": "end_term", "published": true}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var report marks.PublishReport
		unmarshal(t, rec, &report)
		assert.Equal(t, 0, report.Updated)
		assert.Equal(t, []string{lazy.ID}, report.Skipped)

		sent := fx.mailSvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, student.Email, sent[0].To[0].Address)
	})

	t.Run("Published marks are locked", func(t *testing.T) {
		rec := fx.do(http.MethodPut, "/api/courses/"+crs.ID+"/marks/"+student.ID, adminToken, []byte(`{"internal_marks": 20}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"internal_marks": "`+grading.ErrComponentLocked.Error()+`"}`, rec.Body.String())
	})
}

func Test_marksApi_results(t *testing.T) {
	fx := setup(t)
	admin := testutil.CreateAdmin(t, fx.usrRepo, "Admin", "admin")
	faculty := testutil.CreateFaculty(t, fx.usrRepo, "Teacher", "teacher")
	other := testutil.CreateFaculty(t, fx.usrRepo, "Other", "other")
	student := testutil.CreateStudent(t, fx.usrRepo, "Hero", "hero")
	peer := testutil.CreateStudent(t, fx.usrRepo, "Amy", "amy")
	crs := testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro", 1, "2023-2024", faculty.ID)
	testutil.SaveMarks(t, fx.mrkRepo, student.ID, crs.ID, m(15), m(25), m(45), true, false, false)
	testutil.SaveMarks(t, fx.mrkRepo, peer.ID, crs.ID, m(20), m(30), m(50), true, true, true)

	courseResults := "/api/courses/" + crs.ID + "/results"
	studentResults := "/api/students/" + student.ID + "/results"

	tests := []httpTest{
		{name: "Course results: auth required", path: courseResults, wantCode: http.StatusUnauthorized},
		{name: "Course results: students not allowed", path: courseResults, token: fx.getToken(t, student), wantCode: http.StatusForbidden},
		{name: "Course results: other faculty", path: courseResults, token: fx.getToken(t, other), wantCode: http.StatusForbidden},
		{name: "Course results: unknown course", path: "/api/courses/lol/results", token: fx.getToken(t, admin), wantCode: http.StatusNotFound},
		{name: "Student results: auth required", path: studentResults, wantCode: http.StatusUnauthorized},
		{name: "Student results: peer", path: studentResults, token: fx.getToken(t, peer), wantCode: http.StatusForbidden},
		{name: "Student results: faculty", path: studentResults, token: fx.getToken(t, faculty), wantCode: http.StatusForbidden},
		{name: "Student results: not a student", path: "/api/students/" + faculty.ID + "/results", token: fx.getToken(t, admin), wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, fx.app, tests)

	t.Run("Course results", func(t *testing.T) {
		rec := fx.do(http.MethodGet, courseResults, fx.getToken(t, faculty))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res marks.CourseResults
		unmarshal(t, rec, &res)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, peer.ID, res.Rows[0].StudentID)
		assert.Equal(t, "85", res.Rows[1].Result.TotalMarks.String())
		assert.Equal(t, 2, res.Summary.Complete)
		assert.Equal(t, 1, res.Summary.Published)
		assert.Equal(t, 92.5, res.Summary.Mean)
	})

	t.Run("Student sees masked results", func(t *testing.T) {
		rec := fx.do(http.MethodGet, studentResults, fx.getToken(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res marks.StudentResults
		unmarshal(t, rec, &res)
		assert.True(t, res.Masked)
		require.Len(t, res.Semesters, 1)
		require.Len(t, res.Semesters[0].Results, 1)

		view := res.Semesters[0].Results[0].View
		assert.Equal(t, "15", view.Internal.String())
		assert.False(t, view.MidTerm.Valid())
		assert.False(t, view.EndTerm.Valid())
		assert.False(t, view.TotalMarks.Valid())
		assert.Equal(t, grading.GradeNone, view.Grade)
		assert.Equal(t, float64(0), res.Semesters[0].SGPA)
	})

	t.Run("Admin sees everything", func(t *testing.T) {
		rec := fx.do(http.MethodGet, studentResults, fx.getToken(t, admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res marks.StudentResults
		unmarshal(t, rec, &res)
		assert.False(t, res.Masked)
		require.Len(t, res.Semesters, 1)
		view := res.Semesters[0].Results[0].View
		assert.Equal(t, "85", view.TotalMarks.String())
		assert.Equal(t, grading.GradeA, view.Grade)
	})
}
