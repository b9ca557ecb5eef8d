// Package testutil holds fixtures shared by the tests of every layer.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
	"github.com/trezcool/matokeo/storage/database"
)

// NewValidator returns a validator & translator with every domain validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	marks.InitValidators(validate, translator)
	return validate, translator
}

// PrepareDB opens a migrated in-memory sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("PrepareDB() failed to open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Millisecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if usr.Roles == nil {
		usr.Roles = make([]string, 0)
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name, uname string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, uname, uname+"@test.cd", "", []string{user.RoleStudent}, true)
}

func CreateFaculty(t *testing.T, repo user.Repository, name, uname string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, uname, uname+"@test.cd", "", []string{user.RoleFaculty}, true)
}

func CreateAdmin(t *testing.T, repo user.Repository, name, uname string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, uname, uname+"@test.cd", "", []string{user.RoleAdmin}, true)
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	code, title string,
	semester int,
	academicYear, facultyID string,
) course.Course {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Code:         code,
		Title:        title,
		Semester:     semester,
		AcademicYear: academicYear,
		FacultyID:    facultyID,
		Credits:      4,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// SaveMarks stores a record as is. pubs are the internal, mid-term & end-term published flags.
func SaveMarks(
	t *testing.T,
	repo marks.Repository,
	studentID, courseID string,
	internal, midTerm, endTerm grading.Mark,
	pubs ...bool,
) marks.Record {
	t.Helper()
	flags := make([]bool, 3)
	copy(flags, pubs)
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec, err := repo.SaveRecord(context.Background(), marks.Record{
		MarkRecord: grading.MarkRecord{
			StudentID: studentID,
			CourseID:  courseID,
			Internal:  grading.ComponentMarks{Marks: internal, Published: flags[0]},
			MidTerm:   grading.ComponentMarks{Marks: midTerm, Published: flags[1]},
			EndTerm:   grading.ComponentMarks{Marks: endTerm, Published: flags[2]},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("SaveMarks() failed: %v", err)
	}
	return rec
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
