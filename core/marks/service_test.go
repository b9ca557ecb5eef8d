package marks_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
	"github.com/trezcool/matokeo/services/email"
	"github.com/trezcool/matokeo/storage/database/inmem"
	"github.com/trezcool/matokeo/tests"
)

type fixture struct {
	svc      *marks.Service
	mailSvc  *emailsvc.ConsoleServiceMock
	usrRepo  user.Repository
	crsRepo  course.Repository
	mrkRepo  marks.Repository
	admin    user.User
	faculty  user.User
	stranger user.User // faculty member not teaching crs
	student  user.User
	crs      course.Course
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	crsRepo := inmemdb.NewCourseRepository(db)
	mrkRepo := inmemdb.NewMarksRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	validate, _ := testutil.NewValidator()

	usrSvc := user.NewService(conf, usrRepo, mailSvc)
	crsSvc := course.NewService(crsRepo, usrSvc)

	fx := fixture{
		svc:      marks.NewService(mrkRepo, crsSvc, usrSvc, mailSvc, validate),
		mailSvc:  mailSvc,
		usrRepo:  usrRepo,
		crsRepo:  crsRepo,
		mrkRepo:  mrkRepo,
		admin:    testutil.CreateAdmin(t, usrRepo, "Admin", "admin"),
		faculty:  testutil.CreateFaculty(t, usrRepo, "Teacher", "teacher"),
		stranger: testutil.CreateFaculty(t, usrRepo, "Stranger", "stranger"),
		student:  testutil.CreateStudent(t, usrRepo, "Hero", "hero"),
	}
	fx.crs = testutil.CreateCourse(t, crsRepo, "CS101", "Intro", 1, "2023-2024", fx.faculty.ID)
	return fx
}

func m(v float64) grading.Mark { return grading.NewMark(v) }

func publish(c grading.Component, published bool) marks.PublishRequest {
	return marks.PublishRequest{Component: string(c), Published: testutil.BoolPtr(published)}
}

func TestService_EnterMarks(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	t.Run("permissions", func(t *testing.T) {
		tests := []struct {
			name    string
			actor   user.User
			crsID   string
			stdID   string
			wantErr error
		}{
			{name: "unknown course", actor: fx.admin, crsID: "missing", stdID: fx.student.ID, wantErr: course.ErrNotFound},
			{name: "student", actor: fx.student, crsID: fx.crs.ID, stdID: fx.student.ID, wantErr: core.ErrPermissionDenied},
			{name: "other faculty", actor: fx.stranger, crsID: fx.crs.ID, stdID: fx.student.ID, wantErr: core.ErrPermissionDenied},
			{name: "not a student", actor: fx.admin, crsID: fx.crs.ID, stdID: fx.faculty.ID, wantErr: marks.ErrStudentNotFound},
			{name: "unknown student", actor: fx.admin, crsID: fx.crs.ID, stdID: "missing", wantErr: marks.ErrStudentNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fx.svc.EnterMarks(ctx, tt.actor, tt.crsID, tt.stdID, marks.MarkEntry{Internal: m(10)})
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			})
		}
	})

	t.Run("invalid entries", func(t *testing.T) {
		tests := []struct {
			name  string
			entry marks.MarkEntry
			want  []string
		}{
			{name: "empty", entry: marks.MarkEntry{}, want: []string{"marksrequired", "marksrequired", "marksrequired"}},
			{name: "out of range", entry: marks.MarkEntry{Internal: m(21), MidTerm: m(-1), EndTerm: m(50)}, want: []string{"marksrange", "marksrange"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fx.svc.EnterMarks(ctx, fx.faculty, fx.crs.ID, fx.student.ID, tt.entry)
				vErrs, ok := err.(validator.ValidationErrors)
				require.True(t, ok, "err = %v", err)
				tags := make([]string, 0, len(vErrs))
				for _, fe := range vErrs {
					tags = append(tags, fe.Tag())
				}
				assert.Equal(t, tt.want, tags)
			})
		}
	})

	row, err := fx.svc.EnterMarks(ctx, fx.faculty, fx.crs.ID, fx.student.ID, marks.MarkEntry{Internal: m(18), MidTerm: m(25)})
	require.NoError(t, err)
	assert.Equal(t, grading.EntryPartiallyEntered, row.EntryState)
	assert.False(t, row.Result.TotalMarks.Valid())
	assert.Equal(t, grading.GradeNone, row.Result.Grade)
	assert.Equal(t, fx.faculty.ID, row.UpdatedBy)
	assert.Equal(t, "Hero", row.Student.Name)

	// absent components are left untouched
	row, err = fx.svc.EnterMarks(ctx, fx.admin, fx.crs.ID, fx.student.ID, marks.MarkEntry{EndTerm: m(47.5)})
	require.NoError(t, err)
	assert.Equal(t, grading.EntryFullyEntered, row.EntryState)
	assert.Equal(t, "90.5", row.Result.TotalMarks.String())
	assert.Equal(t, grading.GradeAPlus, row.Result.Grade)
	assert.Equal(t, grading.StatusPending, row.Result.Status)

	// published components are locked, and the whole entry is rejected
	_, err = fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, fx.student.ID, publish(grading.Internal, true))
	require.NoError(t, err)
	_, err = fx.svc.EnterMarks(ctx, fx.faculty, fx.crs.ID, fx.student.ID, marks.MarkEntry{Internal: m(20), MidTerm: m(30)})
	require.True(t, core.IsValidationError(err), "err = %v", err)
	assert.Equal(t, grading.ErrComponentLocked, errors.Cause(err).(*core.ValidationError).Err)

	rec, err := fx.mrkRepo.GetRecord(ctx, fx.student.ID, fx.crs.ID)
	require.NoError(t, err)
	assert.Equal(t, "18", rec.Internal.Marks.String())
	assert.Equal(t, "25", rec.MidTerm.Marks.String())
}

func TestService_SetPublished(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(15), m(20), grading.Mark{})

	tests := []struct {
		name      string
		actor     user.User
		req       marks.PublishRequest
		wantErr   error
		wantField string
	}{
		{name: "faculty", actor: fx.faculty, req: publish(grading.Internal, true), wantErr: core.ErrPermissionDenied},
		{name: "unknown component", actor: fx.admin, req: marks.PublishRequest{Component: "final", Published: testutil.BoolPtr(true)}, wantField: "component"},
		{name: "absent marks", actor: fx.admin, req: publish(grading.EndTerm, true), wantField: "component"},
		{name: "publish", actor: fx.admin, req: publish(grading.Internal, true)},
		{name: "publish again", actor: fx.admin, req: publish(grading.Internal, true)},
		{name: "unpublish absent marks", actor: fx.admin, req: publish(grading.EndTerm, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.SetPublished(ctx, tt.actor, fx.crs.ID, fx.student.ID, tt.req)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantField != "":
				require.True(t, core.IsValidationError(err), "err = %v", err)
				assert.Equal(t, tt.wantField, errors.Cause(err).(*core.ValidationError).Fields[0].Field)
			default:
				assert.NoError(t, err)
			}
		})
	}

	other := testutil.CreateStudent(t, fx.usrRepo, "Zero", "zero")
	_, err := fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, other.ID, publish(grading.Internal, true))
	assert.Equal(t, marks.ErrNotFound, err)
	assert.Empty(t, fx.mailSvc.Sent())
}

func TestService_PublishNotifications(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(15), m(20), m(30), true, true)

	// hiding then showing a component of a published record does not notify twice
	row, err := fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, fx.student.ID, publish(grading.EndTerm, true))
	require.NoError(t, err)
	assert.Equal(t, grading.StatusPublished, row.Result.Status)
	assert.Equal(t, grading.EntryPublished, row.EntryState)

	sent := fx.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hero@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "CS101 results published", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "65")
	assert.Contains(t, sent[0].TextContent, "B")

	_, err = fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, fx.student.ID, publish(grading.EndTerm, true))
	require.NoError(t, err)
	assert.Len(t, fx.mailSvc.Sent(), 1)

	row, err = fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, fx.student.ID, publish(grading.MidTerm, false))
	require.NoError(t, err)
	assert.Equal(t, grading.StatusPending, row.Result.Status)
	assert.Len(t, fx.mailSvc.Sent(), 1)

	_, err = fx.svc.SetPublished(ctx, fx.admin, fx.crs.ID, fx.student.ID, publish(grading.MidTerm, true))
	require.NoError(t, err)
	assert.Len(t, fx.mailSvc.Sent(), 2)
}

func TestService_PublishCourse(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	s2 := testutil.CreateStudent(t, fx.usrRepo, "Second", "second")
	s3 := testutil.CreateStudent(t, fx.usrRepo, "Third", "third")

	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(15), m(20), m(30), true, true)
	testutil.SaveMarks(t, fx.mrkRepo, s2.ID, fx.crs.ID, m(10), m(10), grading.Mark{}, true, true)
	testutil.SaveMarks(t, fx.mrkRepo, s3.ID, fx.crs.ID, m(10), m(10), m(10), true, true, true)

	_, err := fx.svc.PublishCourse(ctx, fx.faculty, fx.crs.ID, publish(grading.EndTerm, true))
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = fx.svc.PublishCourse(ctx, fx.admin, "missing", publish(grading.EndTerm, true))
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))

	report, err := fx.svc.PublishCourse(ctx, fx.admin, fx.crs.ID, publish(grading.EndTerm, true))
	require.NoError(t, err)
	assert.Equal(t, grading.EndTerm, report.Component)
	assert.True(t, report.Published)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, []string{s2.ID}, report.Skipped)

	sent := fx.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hero@test.cd", sent[0].To[0].Address)

	report, err = fx.svc.PublishCourse(ctx, fx.admin, fx.crs.ID, publish(grading.EndTerm, false))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)
	assert.Empty(t, report.Skipped)
	assert.Len(t, fx.mailSvc.Sent(), 1)

	rec, err := fx.mrkRepo.GetRecord(ctx, s3.ID, fx.crs.ID)
	require.NoError(t, err)
	assert.False(t, rec.EndTerm.Published)
	assert.Equal(t, fx.admin.ID, rec.UpdatedBy)
}

func TestService_CourseResults(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	amy := testutil.CreateStudent(t, fx.usrRepo, "Amy", "amy")
	zed := testutil.CreateStudent(t, fx.usrRepo, "Zed", "zed")

	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(18), m(27), m(45), true, true, true) // 90 A+
	testutil.SaveMarks(t, fx.mrkRepo, amy.ID, fx.crs.ID, m(10), m(15), m(25))                          // 50 C
	testutil.SaveMarks(t, fx.mrkRepo, zed.ID, fx.crs.ID, m(10), grading.Mark{}, grading.Mark{})

	_, err := fx.svc.CourseResults(ctx, fx.stranger, fx.crs.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = fx.svc.CourseResults(ctx, fx.student, fx.crs.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	res, err := fx.svc.CourseResults(ctx, fx.faculty, fx.crs.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.crs.ID, res.Course.ID)

	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		names = append(names, row.Student.Name)
	}
	assert.Equal(t, []string{"Amy", "Hero", "Zed"}, names)
	// staff see unpublished marks
	assert.Equal(t, "50", res.Rows[0].Result.TotalMarks.String())
	assert.Equal(t, grading.GradeC, res.Rows[0].Result.Grade)

	sum := res.Summary
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 2, sum.Complete)
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 70.0, sum.Mean)
	assert.Equal(t, 70.0, sum.Median)
	assert.Equal(t, 50.0, sum.Min)
	assert.Equal(t, 90.0, sum.Max)
	assert.Equal(t, 20.0, sum.StdDev)
	assert.Equal(t, 1, sum.Distribution[grading.GradeAPlus])
	assert.Equal(t, 1, sum.Distribution[grading.GradeC])
	assert.Equal(t, 0, sum.Distribution[grading.GradeF])

	empty := testutil.CreateCourse(t, fx.crsRepo, "CS102", "Empty", 1, "2023-2024", fx.faculty.ID)
	res, err = fx.svc.CourseResults(ctx, fx.admin, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 0, res.Summary.Complete)
	assert.Equal(t, 0.0, res.Summary.Mean)
}

func TestService_StudentResults(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	other := testutil.CreateStudent(t, fx.usrRepo, "Other", "other")

	ma101 := testutil.CreateCourse(t, fx.crsRepo, "MA101", "Calculus", 1, "2023-2024", fx.faculty.ID)
	cs201 := testutil.CreateCourse(t, fx.crsRepo, "CS201", "Algorithms", 2, "2023-2024", fx.faculty.ID)

	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, ma101.ID, m(18), m(27), m(45), true, true, true)    // 90 A+ published
	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(14), m(21), m(35), true, false, false) // 70 B+ pending
	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, cs201.ID, m(8), m(12), grading.Mark{}, true)

	_, err := fx.svc.StudentResults(ctx, other, fx.student.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = fx.svc.StudentResults(ctx, fx.faculty, fx.student.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = fx.svc.StudentResults(ctx, fx.admin, fx.faculty.ID)
	assert.Equal(t, marks.ErrStudentNotFound, err)

	t.Run("student", func(t *testing.T) {
		res, err := fx.svc.StudentResults(ctx, fx.student, fx.student.ID)
		require.NoError(t, err)
		assert.True(t, res.Masked)
		assert.Equal(t, fx.student.ID, res.Student.ID)
		require.Len(t, res.Semesters, 2)

		sem1 := res.Semesters[0]
		assert.Equal(t, 1, sem1.Semester)
		require.Len(t, sem1.Results, 2)
		assert.Equal(t, "CS101", sem1.Results[0].Course.Code)
		assert.Equal(t, "MA101", sem1.Results[1].Course.Code)
		assert.Equal(t, 9.0, sem1.SGPA) // pending CS101 left out

		pending := sem1.Results[0].View
		assert.Equal(t, "14", pending.Internal.String())
		assert.False(t, pending.MidTerm.Valid())
		assert.False(t, pending.EndTerm.Valid())
		assert.False(t, pending.TotalMarks.Valid())
		assert.Equal(t, grading.GradeNone, pending.Grade)
		assert.Equal(t, grading.StatusPending, pending.Status)

		published := sem1.Results[1].View
		assert.Equal(t, "90", published.TotalMarks.String())
		assert.Equal(t, grading.GradeAPlus, published.Grade)

		sem2 := res.Semesters[1]
		assert.Equal(t, 2, sem2.Semester)
		assert.Equal(t, 0.0, sem2.SGPA)
	})

	t.Run("admin", func(t *testing.T) {
		res, err := fx.svc.StudentResults(ctx, fx.admin, fx.student.ID)
		require.NoError(t, err)
		assert.False(t, res.Masked)
		require.Len(t, res.Semesters, 2)

		sem1 := res.Semesters[0]
		assert.Equal(t, 8.0, sem1.SGPA) // (7 + 9) / 2
		assert.Equal(t, "70", sem1.Results[0].View.TotalMarks.String())
		assert.Equal(t, grading.GradeBPlus, sem1.Results[0].View.Grade)
	})

	t.Run("no records", func(t *testing.T) {
		res, err := fx.svc.StudentResults(ctx, other, other.ID)
		require.NoError(t, err)
		assert.Empty(t, res.Semesters)
	})
}

type failingMarksRepo struct {
	marks.Repository
	err error
}

func (repo failingMarksRepo) SaveRecord(context.Context, marks.Record) (marks.Record, error) {
	return marks.Record{}, repo.err
}

func TestService_errorsCarryRecordContext(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	validate, _ := testutil.NewValidator()
	usrSvc := user.NewService(conf, fx.usrRepo, fx.mailSvc)
	errDB := errors.New("connection reset")
	svc := marks.NewService(
		failingMarksRepo{Repository: fx.mrkRepo, err: errDB},
		course.NewService(fx.crsRepo, usrSvc),
		usrSvc,
		fx.mailSvc,
		validate,
	)

	_, err := svc.EnterMarks(ctx, fx.faculty, fx.crs.ID, fx.student.ID, marks.MarkEntry{Internal: m(10)})
	require.Error(t, err)
	assert.Equal(t, errDB, errors.Cause(err))
	assert.Equal(t, core.LogFields{"student_id": fx.student.ID, "course_id": fx.crs.ID}, core.FieldsOf(err))
}

func TestService_CourseResultsAfterStudentDeletion(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	other := testutil.CreateStudent(t, fx.usrRepo, "Zero", "zero")
	testutil.SaveMarks(t, fx.mrkRepo, fx.student.ID, fx.crs.ID, m(18), m(27), m(40))
	testutil.SaveMarks(t, fx.mrkRepo, other.ID, fx.crs.ID, m(10), m(10), m(10))

	_, err := fx.usrRepo.DeleteUsersByID(ctx, fx.student.ID)
	require.NoError(t, err)

	res, err := fx.svc.CourseResults(ctx, fx.admin, fx.crs.ID)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, other.ID, res.Rows[0].Student.ID)
	assert.Equal(t, 1, res.Summary.Records)
	assert.Equal(t, 30.0, res.Summary.Mean)
}
