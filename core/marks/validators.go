package marks

import (
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/grading"
)

var (
	marksRangeTag  = "marksrange"
	marksRangeText = "marks must be between 0 and {0}"

	marksRequiredTag  = "marksrequired"
	marksRequiredText = "at least one of internal_marks, mid_term_marks or end_term_marks is required"

	entryFields = map[grading.Component][2]string{ // {json name, struct name}
		grading.Internal: {"internal_marks", "Internal"},
		grading.MidTerm:  {"mid_term_marks", "MidTerm"},
		grading.EndTerm:  {"end_term_marks", "EndTerm"},
	}
)

// InitValidators registers the marks validations & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(markEntryStructValidation, MarkEntry{})

	_ = validate.RegisterTranslation(
		marksRangeTag, translator,
		func(t ut.Translator) error { return t.Add(marksRangeTag, marksRangeText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(marksRangeTag, fe.Param())
			return s
		},
	)
	core.RegisterCustomTranslation(validate, translator, marksRequiredTag, marksRequiredText)
}

// markEntryStructValidation checks every entered component against its range.
func markEntryStructValidation(sl validator.StructLevel) {
	entry, ok := sl.Current().Interface().(MarkEntry)
	if !ok {
		return
	}
	if entry.IsEmpty() {
		for _, c := range grading.Components {
			f := entryFields[c]
			sl.ReportError(entry.Get(c), f[0], f[1], marksRequiredTag, "")
		}
		return
	}
	for _, c := range grading.Components {
		v, ok := entry.Get(c).Value()
		if !ok {
			continue
		}
		if max := c.MaxMarks(); v < 0 || v > max {
			f := entryFields[c]
			sl.ReportError(v, f[0], f[1], marksRangeTag, strconv.FormatFloat(max, 'f', -1, 64))
		}
	}
}
