package core_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/matokeo/core"
)

func TestAcademicYearValidation(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		year  string
		valid bool
	}{
		{year: "2023-2024", valid: true},
		{year: "1999-2000", valid: true},
		{year: "2023-2025"},
		{year: "2024-2023"},
		{year: "2023-2023"},
		{year: "23-24"},
		{year: "2023/2024"},
		{year: ""},
	}
	for _, tt := range tests {
		t.Run(tt.year, func(t *testing.T) {
			err := validate.Var(tt.year, "academic_year")
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
