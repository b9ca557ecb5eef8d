// Package inmemdb keeps every repository in process memory. Used in dev and tests.
package inmemdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
)

type (
	DB struct {
		user   *userTable
		course *courseTable
		marks  *marksTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	marksKey struct {
		studentID string
		courseID  string
	}

	marksTable struct {
		sync.RWMutex
		table map[marksKey]*marks.Record
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		course: &courseTable{table: make(map[string]*course.Course)},
		marks:  &marksTable{table: make(map[marksKey]*marks.Record)},
	}
}

// less compares two rows on the given orderings; the getter returns the comparable value of a field.
// detachUsers drops the marks of deleted users and unassigns the courses they taught,
// like the foreign keys of the SQL schema do.
func (db *DB) detachUsers(ids map[string]bool) {
	db.course.Lock()
	for _, c := range db.course.table {
		if ids[c.FacultyID] {
			c.FacultyID = ""
		}
	}
	db.course.Unlock()

	db.marks.Lock()
	for key := range db.marks.table {
		if ids[key.studentID] {
			delete(db.marks.table, key)
		}
	}
	db.marks.Unlock()
}

func less(ordering []core.DBOrdering, get func(idx int, field string) string, i, j int) bool {
	for _, ord := range ordering {
		a, b := get(i, ord.Field), get(j, ord.Field)
		if a == b {
			continue
		}
		if ord.Ascending {
			return a < b
		}
		return a > b
	}
	return false
}

func lower(s string) string { return strings.ToLower(s) }

func sortStable(n int, ordering []core.DBOrdering, get func(idx int, field string) string, swap func(i, j int)) {
	sort.Stable(sorter{n: n, less: func(i, j int) bool { return less(ordering, get, i, j) }, swap: swap})
}

type sorter struct {
	n    int
	less func(i, j int) bool
	swap func(i, j int)
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }
