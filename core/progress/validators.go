package progress

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/oasis-elearning/oasis/core"
)

var lessonStatusTag = "lessonstatus"

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterChoices(validate, translator, lessonStatusTag, "status", LessonStatuses)
}
