package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/oasis-elearning/oasis/core"
)

var (
	categoryTag    = "coursecategory"
	levelTag       = "courselevel"
	contentTypeTag = "contenttype"

	correctOptionTag  = "correctoption"
	correctOptionText = "at least one option must be marked correct"

	enrollmentDatesTag  = "enrollmentdates"
	enrollmentDatesText = "this date must be after the start date"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterChoices(validate, translator, categoryTag, "category", AllCategories)
	core.RegisterChoices(validate, translator, levelTag, "level", AllLevels)
	core.RegisterChoices(validate, translator, contentTypeTag, "content type", AllContentTypes)

	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, correctOptionTag, correctOptionText)

	validate.RegisterStructValidation(enrollmentStructValidation, EnrollmentInput{})
	core.RegisterCustomTranslation(validate, translator, enrollmentDatesTag, enrollmentDatesText)
}

// Custom Validators

// questionStructValidation checks that a question can be answered correctly.
func questionStructValidation(sl validator.StructLevel) {
	qn := sl.Current().Interface().(Question)
	for _, o := range qn.Options {
		if o.IsCorrect {
			return
		}
	}
	sl.ReportError(qn.Options, "options", "Options", correctOptionTag, "")
}

func enrollmentStructValidation(sl validator.StructLevel) {
	e := sl.Current().Interface().(EnrollmentInput)
	if e.StartDate != nil && e.EndDate != nil && !e.EndDate.After(*e.StartDate) {
		sl.ReportError(e.EndDate, "end_date", "EndDate", enrollmentDatesTag, "")
	}
	if e.StartDate != nil && e.CompleteBy != nil && !e.CompleteBy.After(*e.StartDate) {
		sl.ReportError(e.CompleteBy, "complete_by", "CompleteBy", enrollmentDatesTag, "")
	}
}
