package grading

import (
	"errors"
	"strings"
)

var (
	// errors
	ErrComponentLocked  = errors.New("marks cannot be changed once published")
	ErrPublishAbsent    = errors.New("marks must be entered before they can be published")
	ErrUnknownComponent = errors.New("unknown marks component")
)

// Component identifies one of the three assessed stages of a course.
type Component string

const (
	Internal Component = "internal"
	MidTerm  Component = "mid_term"
	EndTerm  Component = "end_term"
)

// Components lists the stages in the order they are assessed.
var Components = []Component{Internal, MidTerm, EndTerm}

var maxMarks = map[Component]float64{
	Internal: 20,
	MidTerm:  30,
	EndTerm:  50,
}

// ParseComponent accepts the canonical names plus "midterm"/"endterm" spellings.
func ParseComponent(s string) (Component, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case string(Internal):
		return Internal, nil
	case string(MidTerm), "midterm":
		return MidTerm, nil
	case string(EndTerm), "endterm":
		return EndTerm, nil
	}
	return "", ErrUnknownComponent
}

// MaxMarks is the highest mark the component can hold.
func (c Component) MaxMarks() float64 { return maxMarks[c] }

// PublicationState of a single component.
type PublicationState string

const (
	StateEmpty     PublicationState = "empty"     // nothing entered
	StateEntered   PublicationState = "entered"   // entered but hidden from the student
	StatePublished PublicationState = "published" // visible to the student, input locked
)

// ComponentMarks is one stage of a MarkRecord.
type ComponentMarks struct {
	Marks     Mark `json:"marks"`
	Published bool `json:"published"`
}

// State folds the value and the flag into one enumerated state.
// A published flag without a value reads as StateEmpty: it can never make the marks visible.
func (cm ComponentMarks) State() PublicationState {
	switch {
	case !cm.Marks.Valid():
		return StateEmpty
	case cm.Published:
		return StatePublished
	default:
		return StateEntered
	}
}

// Visible returns the marks if the student may see them.
func (cm ComponentMarks) Visible() Mark {
	if cm.State() == StatePublished {
		return cm.Marks
	}
	return Mark{}
}

// EntryState is the lifecycle of a MarkRecord.
type EntryState string

const (
	EntryEmpty            EntryState = "empty"
	EntryPartiallyEntered EntryState = "partially_entered"
	EntryFullyEntered     EntryState = "fully_entered"
	EntryPublished        EntryState = "published"
)

// MarkRecord holds the marks of one student in one course.
type MarkRecord struct {
	StudentID string         `json:"student_id"`
	CourseID  string         `json:"course_id"`
	Internal  ComponentMarks `json:"internal"`
	MidTerm   ComponentMarks `json:"mid_term"`
	EndTerm   ComponentMarks `json:"end_term"`
}

// Component returns the marks of the given stage.
func (r MarkRecord) Component(c Component) ComponentMarks {
	switch c {
	case Internal:
		return r.Internal
	case MidTerm:
		return r.MidTerm
	case EndTerm:
		return r.EndTerm
	}
	return ComponentMarks{}
}

func (r *MarkRecord) component(c Component) (*ComponentMarks, error) {
	switch c {
	case Internal:
		return &r.Internal, nil
	case MidTerm:
		return &r.MidTerm, nil
	case EndTerm:
		return &r.EndTerm, nil
	}
	return nil, ErrUnknownComponent
}

// EnteredCount is the number of components holding a mark.
func (r MarkRecord) EnteredCount() int {
	n := 0
	for _, c := range Components {
		if r.Component(c).Marks.Valid() {
			n++
		}
	}
	return n
}

// AllPublished reports whether every flag is set, regardless of values.
func (r MarkRecord) AllPublished() bool {
	return r.Internal.Published && r.MidTerm.Published && r.EndTerm.Published
}

// EntryState derives the lifecycle state of the record.
func (r MarkRecord) EntryState() EntryState {
	switch n := r.EnteredCount(); {
	case n == 0:
		return EntryEmpty
	case n < len(Components):
		return EntryPartiallyEntered
	case r.AllPublished():
		return EntryPublished
	default:
		return EntryFullyEntered
	}
}

// Enter sets the marks of a component. Absent marks are ignored: an entered value is never retracted.
// A published component is locked until it is unpublished.
func (r *MarkRecord) Enter(c Component, m Mark) error {
	cm, err := r.component(c)
	if err != nil {
		return err
	}
	if !m.Valid() {
		return nil
	}
	if cm.Published {
		return ErrComponentLocked
	}
	cm.Marks = m
	return nil
}

// Publish makes a component visible to the student. Its marks must have been entered.
func (r *MarkRecord) Publish(c Component) error {
	cm, err := r.component(c)
	if err != nil {
		return err
	}
	if !cm.Marks.Valid() {
		return ErrPublishAbsent
	}
	cm.Published = true
	return nil
}

// Unpublish hides a component again, which also unlocks it for entry.
func (r *MarkRecord) Unpublish(c Component) error {
	cm, err := r.component(c)
	if err != nil {
		return err
	}
	cm.Published = false
	return nil
}

// Normalize clears published flags that have no marks behind them.
// Records read from stores that did not enforce the invariant go through here.
func (r *MarkRecord) Normalize() {
	for _, c := range Components {
		cm, _ := r.component(c)
		if !cm.Marks.Valid() {
			cm.Published = false
		}
	}
}
