package marks

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/grading"
	"github.com/trezcool/matokeo/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("marks not found")
	ErrStudentNotFound = errors.New("student not found")
)

type (
	Repository interface {
		// GetRecord returns ErrNotFound until marks were first entered for the pair.
		GetRecord(ctx context.Context, studentID, courseID string) (Record, error)
		QueryRecords(ctx context.Context, filter *QueryFilter) ([]Record, error)
		// SaveRecord inserts or updates the record of (StudentID, CourseID).
		SaveRecord(ctx context.Context, rec Record) (Record, error)
		// SaveRecords saves all records or none.
		SaveRecords(ctx context.Context, recs []Record) error
	}

	ServiceInterface interface {
		EnterMarks(ctx context.Context, actor user.User, courseID, studentID string, entry MarkEntry) (ResultRow, error)
		SetPublished(ctx context.Context, actor user.User, courseID, studentID string, req PublishRequest) (ResultRow, error)
		PublishCourse(ctx context.Context, actor user.User, courseID string, req PublishRequest) (PublishReport, error)
		CourseResults(ctx context.Context, actor user.User, courseID string) (CourseResults, error)
		StudentResults(ctx context.Context, actor user.User, studentID string) (StudentResults, error)
	}

	Service struct {
		repo     Repository
		crsSvc   course.ServiceInterface
		usrSvc   user.ServiceInterface
		mailSvc  core.EmailService
		validate *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	crsSvc course.ServiceInterface,
	usrSvc user.ServiceInterface,
	mailSvc core.EmailService,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		crsSvc:   crsSvc,
		usrSvc:   usrSvc,
		mailSvc:  mailSvc,
		validate: validate,
	}
}

// canManage: admins manage every course, faculty members the ones they teach.
func canManage(actor user.User, crs course.Course) bool {
	return actor.IsAdmin() || (actor.IsFaculty() && crs.TaughtBy(actor.ID))
}

func (svc *Service) getStudent(ctx context.Context, id string) (user.User, error) {
	usr, err := svc.usrSvc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrStudentNotFound
		}
		return user.User{}, errors.Wrap(err, "finding student by ID")
	}
	if !usr.IsStudent() {
		return user.User{}, ErrStudentNotFound
	}
	return usr, nil
}

func (svc *Service) getStudents(ctx context.Context, ids []string) (map[string]user.User, error) {
	res := make(map[string]user.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	users, err := svc.usrSvc.Query(ctx, &user.QueryFilter{IDs: ids}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	for _, usr := range users {
		res[usr.ID] = usr
	}
	return res, nil
}

func recordFields(studentID, courseID string) core.LogFields {
	return core.LogFields{"student_id": studentID, "course_id": courseID}
}

func (svc *Service) getRecord(ctx context.Context, studentID, courseID string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, studentID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, core.WithFields(errors.Wrap(err, "getting marks record"), recordFields(studentID, courseID))
	}
	return rec, nil
}

func (svc *Service) parsePublishRequest(req PublishRequest) (grading.Component, bool, error) {
	if err := svc.validate.Struct(req); err != nil {
		return "", false, err
	}
	comp, err := grading.ParseComponent(req.Component)
	if err != nil {
		return "", false, core.NewValidationError(err, core.FieldError{Field: "component", Error: err.Error()})
	}
	return comp, *req.Published, nil
}

// EnterMarks records the marks typed in for a student. The record is created on first entry.
// Every component of the entry is applied or none is.
func (svc *Service) EnterMarks(ctx context.Context, actor user.User, courseID, studentID string, entry MarkEntry) (ResultRow, error) {
	crs, err := svc.crsSvc.Get(ctx, courseID)
	if err != nil {
		return ResultRow{}, err
	}
	if !canManage(actor, crs) {
		return ResultRow{}, core.ErrPermissionDenied
	}
	student, err := svc.getStudent(ctx, studentID)
	if err != nil {
		return ResultRow{}, err
	}
	if err := svc.validate.Struct(entry); err != nil {
		return ResultRow{}, err
	}

	now := time.Now().UTC()
	rec, err := svc.getRecord(ctx, studentID, courseID)
	switch {
	case err == ErrNotFound:
		rec = Record{
			MarkRecord: grading.MarkRecord{StudentID: studentID, CourseID: courseID},
			CreatedAt:  now,
		}
	case err != nil:
		return ResultRow{}, err
	}

	for _, c := range grading.Components {
		if err := rec.Enter(c, entry.Get(c)); err != nil {
			if err == grading.ErrComponentLocked {
				return ResultRow{}, core.NewValidationError(err, core.FieldError{Field: entryFields[c][0], Error: err.Error()})
			}
			return ResultRow{}, err
		}
	}
	rec.UpdatedBy = actor.ID
	rec.UpdatedAt = now

	rec, err = svc.repo.SaveRecord(ctx, rec)
	if err != nil {
		return ResultRow{}, core.WithFields(errors.Wrap(err, "saving marks record"), recordFields(studentID, courseID))
	}
	return newResultRow(rec, student), nil
}

// SetPublished publishes or hides one component of one record. Admins only.
func (svc *Service) SetPublished(ctx context.Context, actor user.User, courseID, studentID string, req PublishRequest) (ResultRow, error) {
	if !actor.IsAdmin() {
		return ResultRow{}, core.ErrPermissionDenied
	}
	comp, published, err := svc.parsePublishRequest(req)
	if err != nil {
		return ResultRow{}, err
	}
	crs, err := svc.crsSvc.Get(ctx, courseID)
	if err != nil {
		return ResultRow{}, err
	}
	student, err := svc.getStudent(ctx, studentID)
	if err != nil {
		return ResultRow{}, err
	}
	rec, err := svc.getRecord(ctx, studentID, courseID)
	if err != nil {
		return ResultRow{}, err
	}

	before := grading.ComputeDerivedResult(rec.MarkRecord).Status
	if published {
		err = rec.Publish(comp)
	} else {
		err = rec.Unpublish(comp)
	}
	if err != nil {
		if err == grading.ErrPublishAbsent {
			return ResultRow{}, core.NewValidationError(err, core.FieldError{Field: "component", Error: err.Error()})
		}
		return ResultRow{}, err
	}
	rec.UpdatedBy = actor.ID
	rec.UpdatedAt = time.Now().UTC()

	rec, err = svc.repo.SaveRecord(ctx, rec)
	if err != nil {
		fields := recordFields(studentID, courseID)
		fields["component"] = string(comp)
		return ResultRow{}, core.WithFields(errors.Wrap(err, "saving marks record"), fields)
	}

	if isNewlyPublished(before, rec) {
		svc.notifyPublished(crs, map[string]user.User{student.ID: student}, rec)
	}
	return newResultRow(rec, student), nil
}

// PublishCourse toggles one component for every record of a course, atomically. Admins only.
// Publishing skips the records whose component was never entered.
func (svc *Service) PublishCourse(ctx context.Context, actor user.User, courseID string, req PublishRequest) (PublishReport, error) {
	if !actor.IsAdmin() {
		return PublishReport{}, core.ErrPermissionDenied
	}
	comp, published, err := svc.parsePublishRequest(req)
	if err != nil {
		return PublishReport{}, err
	}
	crs, err := svc.crsSvc.Get(ctx, courseID)
	if err != nil {
		return PublishReport{}, err
	}
	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{CourseIDs: []string{crs.ID}})
	if err != nil {
		return PublishReport{}, core.WithFields(errors.Wrap(err, "querying marks records"), core.LogFields{"course_id": crs.ID})
	}

	report := PublishReport{Component: comp, Published: published, Skipped: make([]string, 0)}
	now := time.Now().UTC()
	changed := make([]Record, 0, len(recs))
	newlyPublished := make([]Record, 0)

	for _, rec := range recs {
		cm := rec.Component(comp)
		if cm.Published == published {
			continue
		}
		before := grading.ComputeDerivedResult(rec.MarkRecord).Status
		if published {
			if err := rec.Publish(comp); err != nil {
				report.Skipped = append(report.Skipped, rec.StudentID)
				continue
			}
		} else {
			_ = rec.Unpublish(comp)
		}
		rec.UpdatedBy = actor.ID
		rec.UpdatedAt = now
		changed = append(changed, rec)
		if isNewlyPublished(before, rec) {
			newlyPublished = append(newlyPublished, rec)
		}
	}

	if len(changed) > 0 {
		if err := svc.repo.SaveRecords(ctx, changed); err != nil {
			return PublishReport{}, core.WithFields(errors.Wrap(err, "saving marks records"), core.LogFields{
				"course_id": crs.ID,
				"component": string(comp),
				"records":   len(changed),
			})
		}
	}
	report.Updated = len(changed)
	sort.Strings(report.Skipped)

	if len(newlyPublished) > 0 {
		ids := make([]string, 0, len(newlyPublished))
		for _, rec := range newlyPublished {
			ids = append(ids, rec.StudentID)
		}
		students, err := svc.getStudents(ctx, ids)
		if err != nil {
			return PublishReport{}, err
		}
		svc.notifyPublished(crs, students, newlyPublished...)
	}
	return report, nil
}

// CourseResults is the unmasked results sheet of a course, ordered by student name.
func (svc *Service) CourseResults(ctx context.Context, actor user.User, courseID string) (CourseResults, error) {
	crs, err := svc.crsSvc.Get(ctx, courseID)
	if err != nil {
		return CourseResults{}, err
	}
	if !canManage(actor, crs) {
		return CourseResults{}, core.ErrPermissionDenied
	}
	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{CourseIDs: []string{crs.ID}})
	if err != nil {
		return CourseResults{}, core.WithFields(errors.Wrap(err, "querying marks records"), core.LogFields{"course_id": crs.ID})
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.StudentID)
	}
	students, err := svc.getStudents(ctx, ids)
	if err != nil {
		return CourseResults{}, err
	}

	rows := make([]ResultRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, newResultRow(rec, students[rec.StudentID]))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Student.Name != rows[j].Student.Name {
			return rows[i].Student.Name < rows[j].Student.Name
		}
		return rows[i].StudentID < rows[j].StudentID
	})

	return CourseResults{Course: crs, Rows: rows, Summary: summarize(rows)}, nil
}

// StudentResults is the transcript of a student, grouped by semester.
// Students get the masked view and an SGPA over published results only; admins see everything.
func (svc *Service) StudentResults(ctx context.Context, actor user.User, studentID string) (StudentResults, error) {
	if !(actor.IsAdmin() || actor.ID == studentID) {
		return StudentResults{}, core.ErrPermissionDenied
	}
	student, err := svc.getStudent(ctx, studentID)
	if err != nil {
		return StudentResults{}, err
	}
	masked := !actor.IsAdmin()

	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{StudentIDs: []string{studentID}})
	if err != nil {
		return StudentResults{}, core.WithFields(errors.Wrap(err, "querying marks records"), core.LogFields{"student_id": studentID})
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.CourseID)
	}
	courses, err := svc.crsSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return StudentResults{}, err
	}

	// course code order inside a semester
	sort.SliceStable(recs, func(i, j int) bool {
		return courses[recs[i].CourseID].Code < courses[recs[j].CourseID].Code
	})
	entries := make([]grading.SemesterEntry, 0, len(recs))
	for _, rec := range recs {
		crs, ok := courses[rec.CourseID]
		if !ok {
			continue
		}
		entries = append(entries, grading.SemesterEntry{Group: crs.Group(), Record: rec.MarkRecord})
	}

	res := StudentResults{
		Student:   newStudentInfo(student),
		Masked:    masked,
		Semesters: make([]SemesterResults, 0),
	}
	for _, g := range grading.GroupBySemester(entries) {
		sem := SemesterResults{
			SemesterGroup: g.SemesterGroup,
			Results:       make([]CourseResult, 0, len(g.Records)),
			SGPA:          g.SGPA,
		}
		if masked {
			sem.SGPA = g.PublishedSGPA
		}
		for _, r := range g.Records {
			view := grading.NewFullView(r)
			if masked {
				view = grading.NewStudentView(r)
			}
			sem.Results = append(sem.Results, CourseResult{Course: courses[r.CourseID], View: view})
		}
		res.Semesters = append(res.Semesters, sem)
	}
	return res, nil
}

func isNewlyPublished(before grading.Status, rec Record) bool {
	return before == grading.StatusPending && grading.ComputeDerivedResult(rec.MarkRecord).Status == grading.StatusPublished
}

// notifyPublished emails each student whose record just became published.
func (svc *Service) notifyPublished(crs course.Course, students map[string]user.User, recs ...Record) {
	msgs := make([]*core.EmailMessage, 0, len(recs))
	for _, rec := range recs {
		student, ok := students[rec.StudentID]
		if !ok || student.Email == "" {
			continue
		}
		res := grading.ComputeDerivedResult(rec.MarkRecord)
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject:      fmt.Sprintf("%s results published", crs.Code),
			TemplateName: "results_published",
			TemplateData: map[string]interface{}{
				"Name":         student.Name,
				"CourseCode":   crs.Code,
				"CourseTitle":  crs.Title,
				"Semester":     crs.Semester,
				"AcademicYear": crs.AcademicYear,
				"Total":        res.TotalMarks.String(),
				"Grade":        string(res.Grade),
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func newStudentInfo(usr user.User) StudentInfo {
	return StudentInfo{ID: usr.ID, Name: usr.Name, Username: usr.Username, Email: usr.Email}
}

func newResultRow(rec Record, student user.User) ResultRow {
	return ResultRow{
		Record:     rec,
		Result:     grading.ComputeDerivedResult(rec.MarkRecord),
		EntryState: rec.EntryState(),
		Student:    newStudentInfo(student),
	}
}

// summarize computes the course statistics over complete records.
func summarize(rows []ResultRow) CourseSummary {
	sum := CourseSummary{
		Records:      len(rows),
		Distribution: make(map[grading.Grade]int, len(grading.Grades)),
	}
	for _, g := range grading.Grades {
		sum.Distribution[g] = 0
	}

	totals := make(stats.Float64Data, 0, len(rows))
	for _, row := range rows {
		total, ok := row.Result.TotalMarks.Value()
		if !ok {
			continue
		}
		totals = append(totals, total)
		sum.Distribution[row.Result.Grade]++
		if row.Result.Status == grading.StatusPublished {
			sum.Published++
		}
	}
	sum.Complete = len(totals)
	if sum.Complete == 0 {
		return sum
	}

	round := func(v float64, err error) float64 {
		if err != nil {
			return 0
		}
		r, _ := stats.Round(v, 2)
		return r
	}
	sum.Mean = round(totals.Mean())
	sum.Median = round(totals.Median())
	sum.Min = round(totals.Min())
	sum.Max = round(totals.Max())
	sum.StdDev = round(totals.StandardDeviation())
	return sum
}
