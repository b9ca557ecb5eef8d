package course_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/user"
	"github.com/trezcool/matokeo/services/email"
	"github.com/trezcool/matokeo/storage/database/inmem"
	"github.com/trezcool/matokeo/tests"
)

type fixture struct {
	svc     *course.Service
	usrRepo user.Repository
	crsRepo course.Repository
	admin   user.User
	faculty user.User
	student user.User
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	crsRepo := inmemdb.NewCourseRepository(db)
	usrSvc := user.NewService(conf, usrRepo, emailsvc.NewConsoleServiceMock(conf))
	return fixture{
		svc:     course.NewService(crsRepo, usrSvc),
		usrRepo: usrRepo,
		crsRepo: crsRepo,
		admin:   testutil.CreateAdmin(t, usrRepo, "Admin", "admin"),
		faculty: testutil.CreateFaculty(t, usrRepo, "Teacher", "teacher"),
		student: testutil.CreateStudent(t, usrRepo, "Hero", "hero"),
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(vErr.Fields))
	for _, fe := range vErr.Fields {
		res = append(res, fe.Field)
	}
	return res
}

func TestNewCourse_Validate(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	validate, _ := testutil.NewValidator()
	testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro", 1, "2023-2024", fx.faculty.ID)

	tests := []struct {
		name       string
		nc         course.NewCourse
		wantTags   []string // validator tags
		wantFields []string // service validation fields
	}{
		{name: "missing fields", nc: course.NewCourse{}, wantTags: []string{"required", "required", "required", "required"}},
		{name: "bad year", nc: course.NewCourse{Code: "CS102", Title: "Algo", Semester: 1, AcademicYear: "2023-2025"}, wantTags: []string{"academic_year"}},
		{name: "bad semester", nc: course.NewCourse{Code: "CS102", Title: "Algo", Semester: 13, AcademicYear: "2023-2024"}, wantTags: []string{"max"}},
		{name: "duplicate code", nc: course.NewCourse{Code: " cs101 ", Title: "Intro", Semester: 1, AcademicYear: "2023-2024"}, wantFields: []string{"code"}},
		{name: "not a faculty member", nc: course.NewCourse{Code: "CS102", Title: "Algo", Semester: 1, AcademicYear: "2023-2024", FacultyID: fx.student.ID}, wantFields: []string{"faculty_id"}},
		{name: "unknown faculty", nc: course.NewCourse{Code: "CS102", Title: "Algo", Semester: 1, AcademicYear: "2023-2024", FacultyID: "lol"}, wantFields: []string{"faculty_id"}},
		{name: "same code other year", nc: course.NewCourse{Code: "CS101", Title: "Intro", Semester: 1, AcademicYear: "2024-2025", FacultyID: fx.faculty.ID}},
		{name: "unassigned", nc: course.NewCourse{Code: "CS103", Title: "Networks", Semester: 2, AcademicYear: "2023-2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nc.Validate(ctx, validate, fx.svc)
			switch {
			case tt.wantTags != nil:
				vErrs, ok := err.(validator.ValidationErrors)
				require.True(t, ok, "err = %v", err)
				tags := make([]string, 0, len(vErrs))
				for _, fe := range vErrs {
					tags = append(tags, fe.Tag())
				}
				assert.ElementsMatch(t, tt.wantTags, tags)
			case tt.wantFields != nil:
				assert.Equal(t, tt.wantFields, fieldsOf(t, err))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	nc := course.NewCourse{Code: "CS101", Title: "Intro", Semester: 1, AcademicYear: "2023-2024", FacultyID: fx.faculty.ID, Credits: 4}

	_, err := fx.svc.Create(ctx, fx.faculty, nc)
	assert.Equal(t, core.ErrPermissionDenied, err)

	crs, err := fx.svc.Create(ctx, fx.admin, nc)
	require.NoError(t, err)
	assert.NotEmpty(t, crs.ID)
	assert.True(t, crs.TaughtBy(fx.faculty.ID))

	got, err := fx.svc.Get(ctx, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, crs.Code, got.Code)

	_, err = fx.svc.Get(ctx, "")
	assert.Equal(t, course.ErrNotFound, err)
}

func TestService_Query(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	other := testutil.CreateFaculty(t, fx.usrRepo, "Other", "other")

	cs101 := testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro to CS", 1, "2023-2024", fx.faculty.ID)
	cs201 := testutil.CreateCourse(t, fx.crsRepo, "CS201", "Algorithms", 3, "2023-2024", other.ID)
	ma101 := testutil.CreateCourse(t, fx.crsRepo, "MA101", "Calculus", 1, "2024-2025", fx.faculty.ID)

	codes := func(courses []course.Course) []string {
		res := make([]string, 0, len(courses))
		for _, c := range courses {
			res = append(res, c.Code)
		}
		return res
	}

	tests := []struct {
		name     string
		actor    user.User
		filter   *course.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "admin sees all", actor: fx.admin, want: []string{cs101.Code, cs201.Code, ma101.Code}},
		{name: "faculty sees own", actor: fx.faculty, want: []string{cs101.Code, ma101.Code}},
		{name: "faculty cannot widen", actor: fx.faculty, filter: &course.QueryFilter{FacultyID: other.ID}, want: []string{cs101.Code, ma101.Code}},
		{name: "by year", actor: fx.admin, filter: &course.QueryFilter{AcademicYear: "2023-2024"}, want: []string{cs101.Code, cs201.Code}},
		{name: "by semester", actor: fx.admin, filter: &course.QueryFilter{Semester: 3}, want: []string{cs201.Code}},
		{name: "search title", actor: fx.admin, filter: &course.QueryFilter{Search: "calc"}, want: []string{ma101.Code}},
		{name: "ordering", actor: fx.admin, ordering: []core.DBOrdering{{Field: "title", Ascending: true}}, want: []string{cs201.Code, ma101.Code, cs101.Code}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.svc.Query(ctx, tt.actor, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(got))
		})
	}

	t.Run("students are denied", func(t *testing.T) {
		got, err := fx.svc.Query(ctx, fx.student, nil, nil)
		assert.Equal(t, core.ErrPermissionDenied, err)
		assert.Nil(t, got)
	})

	byID, err := fx.svc.GetByIDs(ctx, cs101.ID, ma101.ID, "missing")
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Equal(t, "MA101", byID[ma101.ID].Code)
}

func TestService_Update(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	validate, _ := testutil.NewValidator()
	crs := testutil.CreateCourse(t, fx.crsRepo, "CS101", "Intro", 1, "2023-2024", fx.faculty.ID)

	unassign := ""
	credits := 6
	uc := course.UpdateCourse{Title: "Introduction", FacultyID: &unassign, Credits: &credits}
	require.NoError(t, uc.Validate(ctx, crs, validate, fx.svc))

	_, err := fx.svc.Update(ctx, fx.faculty, crs, uc)
	assert.Equal(t, core.ErrPermissionDenied, err)

	updated, err := fx.svc.Update(ctx, fx.admin, crs, uc)
	require.NoError(t, err)
	assert.Equal(t, "CS101", updated.Code)
	assert.Equal(t, "Introduction", updated.Title)
	assert.Equal(t, "", updated.FacultyID)
	assert.Equal(t, 6, updated.Credits)

	notFaculty := fx.student.ID
	uc = course.UpdateCourse{FacultyID: &notFaculty}
	assert.Equal(t, []string{"faculty_id"}, fieldsOf(t, uc.Validate(ctx, crs, validate, fx.svc)))
}
