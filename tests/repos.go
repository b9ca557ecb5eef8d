package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
)

// Repos is one storage engine's set of repositories.
type Repos struct {
	Users   user.Repository
	Courses course.Repository
	Marks   marks.Repository
}

// RunRepositoryTests checks the behaviour every storage engine shares.
// newRepos must return empty repositories on each call.
func RunRepositoryTests(t *testing.T, newRepos func(t *testing.T) Repos) {
	t.Run("users", func(t *testing.T) { testUserRepository(t, newRepos(t).Users) })
	t.Run("courses", func(t *testing.T) { testCourseRepository(t, newRepos(t)) })
	t.Run("marks", func(t *testing.T) { testMarksRepository(t, newRepos(t)) })
	t.Run("delete users", func(t *testing.T) { testDeleteUsers(t, newRepos(t)) })
}

func userIDs(users []user.User) []string {
	res := make([]string, 0, len(users))
	for _, u := range users {
		res = append(res, u.ID)
	}
	return res
}

func testUserRepository(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	student := CreateUser(t, repo, "Hero Student", "hero", "hero@test.cd", "Xq7#mZp2!w", []string{user.RoleStudent}, true, now)
	faculty := CreateUser(t, repo, "Teacher", "teacher", "", "", []string{user.RoleFaculty}, true, now.Add(time.Hour))
	admin := CreateUser(t, repo, "Registrar", "", "registrar@test.cd", "", []string{user.RoleAdminRegistrar}, true, now.Add(2*time.Hour))
	gone := CreateUser(t, repo, "Gone 100%_", "gone", "gone@test.cd", "", []string{user.RoleStudent}, false, now.Add(3*time.Hour))

	t.Run("uniqueness", func(t *testing.T) {
		tests := []struct {
			name    string
			uname   string
			email   string
			excl    []user.User
			wantErr error
		}{
			{name: "username", uname: "hero", email: "new@test.cd", wantErr: user.ErrUsernameExists},
			{name: "email", uname: "new", email: "hero@test.cd", wantErr: user.ErrEmailExists},
			{name: "excluded", uname: "hero", email: "hero@test.cd", excl: []user.User{student}},
			{name: "blank email is not a duplicate", uname: "new", email: ""},
			{name: "blank username is not a duplicate", uname: "", email: "new@test.cd"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.wantErr, errors.Cause(repo.CheckUsernameUniqueness(ctx, tt.uname, tt.email, tt.excl...)))
			})
		}
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name    string
			filter  user.GetFilter
			wantID  string
			wantErr error
		}{
			{name: "by id", filter: user.GetFilter{ID: faculty.ID}, wantID: faculty.ID},
			{name: "by username", filter: user.GetFilter{Username: "hero"}, wantID: student.ID},
			{name: "by email", filter: user.GetFilter{Email: "registrar@test.cd"}, wantID: admin.ID},
			{name: "by username or email", filter: user.GetFilter{UsernameOrEmail: "gone@test.cd"}, wantID: gone.ID},
			{name: "missing", filter: user.GetFilter{Username: "nobody"}, wantErr: user.ErrNotFound},
			{name: "empty filter", filter: user.GetFilter{}, wantErr: user.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.GetUser(ctx, tt.filter)
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, errors.Cause(err))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
			})
		}

		got, err := repo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.Equal(t, student.Name, got.Name)
		assert.Equal(t, []string{user.RoleStudent}, got.Roles)
		assert.True(t, got.IsActive)
		assert.NoError(t, got.CheckPassword("Xq7#mZp2!w"))
		assert.WithinDuration(t, now, got.CreatedAt, time.Second)
		assert.True(t, got.LastLogin.IsZero())
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []user.User
		}{
			{name: "all", want: []user.User{student, faculty, admin, gone}},
			{name: "search is case insensitive", filter: &user.QueryFilter{Search: "HERO"}, want: []user.User{student}},
			{name: "search escapes wildcards", filter: &user.QueryFilter{Search: "100%_"}, want: []user.User{gone}},
			{name: "role prefix", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, want: []user.User{admin}},
			{name: "roles", filter: &user.QueryFilter{Roles: []string{user.RoleFaculty, user.RoleStudent}}, want: []user.User{student, faculty, gone}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: BoolPtr(false)}, want: []user.User{gone}},
			{name: "created range", filter: &user.QueryFilter{CreatedFrom: now.Add(30 * time.Minute), CreatedTo: now.Add(2 * time.Hour)}, want: []user.User{faculty, admin}},
			{name: "ids", filter: &user.QueryFilter{IDs: []string{gone.ID, faculty.ID}}, want: []user.User{faculty, gone}},
			{name: "empty ids", filter: &user.QueryFilter{IDs: []string{}}, want: []user.User{}},
			{name: "ordering", ordering: []core.DBOrdering{{Field: "name", Ascending: false}}, want: []user.User{faculty, admin, student, gone}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, userIDs(tt.want), userIDs(got))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := faculty
		usr.Email = "teacher@test.cd"
		usr.Roles = []string{user.RoleFaculty, user.RoleAdminRegistrar}
		usr.LastLogin = now.Add(5 * time.Hour)
		_, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{Email: "teacher@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, usr.Roles, got.Roles)
		assert.WithinDuration(t, usr.LastLogin, got.LastLogin, time.Second)

		_, err = repo.UpdateUser(ctx, user.User{ID: "missing", Name: "X"})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("delete", func(t *testing.T) {
		n, err := repo.DeleteUsersByID(ctx, gone.ID, "missing")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: gone.ID})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func courseCodes(courses []course.Course) []string {
	res := make([]string, 0, len(courses))
	for _, c := range courses {
		res = append(res, c.Code)
	}
	return res
}

func testCourseRepository(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Courses
	faculty := CreateFaculty(t, repos.Users, "Teacher", "teacher")

	cs101 := CreateCourse(t, repo, "CS101", "Intro to CS", 1, "2023-2024", faculty.ID)
	cs101b := CreateCourse(t, repo, "CS101", "Intro to CS", 1, "2024-2025", "")
	ma101 := CreateCourse(t, repo, "MA101", "Calculus", 2, "2023-2024", faculty.ID)

	assert.Equal(t, course.ErrCodeExists, errors.Cause(repo.CheckCodeUniqueness(ctx, "CS101", "2023-2024")))
	assert.NoError(t, repo.CheckCodeUniqueness(ctx, "CS101", "2023-2024", cs101))
	assert.NoError(t, repo.CheckCodeUniqueness(ctx, "CS102", "2023-2024"))

	got, err := repo.GetCourse(ctx, cs101b.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.FacultyID)
	assert.Equal(t, "2024-2025", got.AcademicYear)
	assert.Equal(t, 4, got.Credits)

	_, err = repo.GetCourse(ctx, "missing")
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))

	tests := []struct {
		name     string
		filter   *course.QueryFilter
		ordering []core.DBOrdering
		want     []course.Course
	}{
		{name: "all", want: []course.Course{cs101, cs101b, ma101}},
		{name: "faculty", filter: &course.QueryFilter{FacultyID: faculty.ID}, want: []course.Course{cs101, ma101}},
		{name: "year", filter: &course.QueryFilter{AcademicYear: "2024-2025"}, want: []course.Course{cs101b}},
		{name: "semester", filter: &course.QueryFilter{Semester: 2}, want: []course.Course{ma101}},
		{name: "search", filter: &course.QueryFilter{Search: "calc"}, want: []course.Course{ma101}},
		{name: "ids", filter: &course.QueryFilter{IDs: []string{ma101.ID, cs101b.ID}}, want: []course.Course{cs101b, ma101}},
		{name: "empty ids", filter: &course.QueryFilter{IDs: []string{}}, want: []course.Course{}},
		{name: "ordering", ordering: []core.DBOrdering{{Field: "semester", Ascending: false}}, want: []course.Course{ma101, cs101, cs101b}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryCourses(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, courseCodes(tt.want), courseCodes(got))
			if tt.name == "ids" {
				assert.Equal(t, []string{cs101b.ID, ma101.ID}, []string{got[0].ID, got[1].ID})
			}
		})
	}

	cs101b.FacultyID = faculty.ID
	cs101b.Title = "Introduction to CS"
	_, err = repo.UpdateCourse(ctx, cs101b)
	require.NoError(t, err)
	got, err = repo.GetCourse(ctx, cs101b.ID)
	require.NoError(t, err)
	assert.Equal(t, faculty.ID, got.FacultyID)
	assert.Equal(t, "Introduction to CS", got.Title)

	_, err = repo.UpdateCourse(ctx, course.Course{ID: "missing"})
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
}

func testMarksRepository(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Marks
	faculty := CreateFaculty(t, repos.Users, "Teacher", "teacher")
	hero := CreateStudent(t, repos.Users, "Hero", "hero")
	zero := CreateStudent(t, repos.Users, "Zero", "zero")
	cs101 := CreateCourse(t, repos.Courses, "CS101", "Intro", 1, "2023-2024", faculty.ID)
	ma101 := CreateCourse(t, repos.Courses, "MA101", "Calculus", 1, "2023-2024", faculty.ID)

	_, err := repo.GetRecord(ctx, hero.ID, cs101.ID)
	assert.Equal(t, marks.ErrNotFound, errors.Cause(err))

	created := SaveMarks(t, repo, hero.ID, cs101.ID, grading.NewMark(18.5), grading.Mark{}, grading.Mark{}, true, true, true)
	// flags without marks are dropped
	assert.True(t, created.Internal.Published)
	assert.False(t, created.MidTerm.Published)
	assert.False(t, created.EndTerm.Published)
	assert.False(t, created.MidTerm.Marks.Valid())
	assert.Equal(t, "18.5", created.Internal.Marks.String())

	rec := created
	rec.MidTerm.Marks = grading.NewMark(0)
	rec.UpdatedBy = faculty.ID
	rec.UpdatedAt = created.UpdatedAt.Add(time.Minute)
	rec.CreatedAt = time.Time{}
	updated, err := repo.SaveRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "0", updated.MidTerm.Marks.String())
	assert.Equal(t, faculty.ID, updated.UpdatedBy)
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Second)
	assert.WithinDuration(t, rec.UpdatedAt, updated.UpdatedAt, time.Second)

	SaveMarks(t, repo, zero.ID, cs101.ID, grading.NewMark(10), grading.NewMark(10), grading.NewMark(10))
	SaveMarks(t, repo, hero.ID, ma101.ID, grading.NewMark(20), grading.Mark{}, grading.Mark{})

	pairs := func(recs []marks.Record) map[string]bool {
		res := make(map[string]bool, len(recs))
		for _, r := range recs {
			res[r.StudentID+"/"+r.CourseID] = true
		}
		return res
	}
	tests := []struct {
		name   string
		filter *marks.QueryFilter
		want   []string
	}{
		{name: "all", want: []string{hero.ID + "/" + cs101.ID, zero.ID + "/" + cs101.ID, hero.ID + "/" + ma101.ID}},
		{name: "course", filter: &marks.QueryFilter{CourseIDs: []string{cs101.ID}}, want: []string{hero.ID + "/" + cs101.ID, zero.ID + "/" + cs101.ID}},
		{name: "student", filter: &marks.QueryFilter{StudentIDs: []string{hero.ID}}, want: []string{hero.ID + "/" + cs101.ID, hero.ID + "/" + ma101.ID}},
		{name: "both", filter: &marks.QueryFilter{CourseIDs: []string{ma101.ID}, StudentIDs: []string{zero.ID}}, want: []string{}},
		{name: "empty ids", filter: &marks.QueryFilter{CourseIDs: []string{}}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryRecords(ctx, tt.filter)
			require.NoError(t, err)
			want := make(map[string]bool, len(tt.want))
			for _, p := range tt.want {
				want[p] = true
			}
			assert.Equal(t, want, pairs(got))
		})
	}

	t.Run("save many", func(t *testing.T) {
		recs, err := repo.QueryRecords(ctx, &marks.QueryFilter{CourseIDs: []string{cs101.ID}})
		require.NoError(t, err)
		for i := range recs {
			require.NoError(t, recs[i].Publish(grading.Internal))
		}
		require.NoError(t, repo.SaveRecords(ctx, recs))
		require.NoError(t, repo.SaveRecords(ctx, nil))

		got, err := repo.QueryRecords(ctx, &marks.QueryFilter{CourseIDs: []string{cs101.ID}})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.True(t, r.Internal.Published)
		}
	})
}

// testDeleteUsers checks that deleting users drops their marks and unassigns their courses.
func testDeleteUsers(t *testing.T, repos Repos) {
	ctx := context.Background()
	faculty := CreateFaculty(t, repos.Users, "Teacher", "teacher")
	hero := CreateStudent(t, repos.Users, "Hero", "hero")
	zero := CreateStudent(t, repos.Users, "Zero", "zero")
	cs101 := CreateCourse(t, repos.Courses, "CS101", "Intro", 1, "2023-2024", faculty.ID)
	SaveMarks(t, repos.Marks, hero.ID, cs101.ID, grading.NewMark(18), grading.NewMark(27), grading.NewMark(40))
	SaveMarks(t, repos.Marks, zero.ID, cs101.ID, grading.NewMark(10), grading.NewMark(10), grading.NewMark(10))

	n, err := repos.Users.DeleteUsersByID(ctx, hero.ID, faculty.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{hero.ID, faculty.ID} {
		_, err = repos.Users.GetUser(ctx, user.GetFilter{ID: id})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	}

	recs, err := repos.Marks.QueryRecords(ctx, &marks.QueryFilter{CourseIDs: []string{cs101.ID}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, zero.ID, recs[0].StudentID)

	crs, err := repos.Courses.GetCourse(ctx, cs101.ID)
	require.NoError(t, err)
	assert.Empty(t, crs.FacultyID)
}
