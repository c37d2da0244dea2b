package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oasis-elearning/oasis/core/course"
)

func TestGrade(t *testing.T) {
	quiz := course.Quiz{
		PassingScore: 70,
		Questions: []course.Question{
			{ID: "q1", Question: "2+2?", Points: 1, Options: []course.Option{{Text: "4", IsCorrect: true}, {Text: "5"}}},
			{ID: "q2", Question: "Capital of France?", Points: 2, Options: []course.Option{{Text: "Lyon"}, {Text: "Paris", IsCorrect: true}}},
			{ID: "q3", Question: "Go mascot?", Points: 1, Options: []course.Option{{Text: "Gopher", IsCorrect: true}, {Text: "Crab"}}},
		},
	}
	now := time.Now()

	tests := []struct {
		name        string
		answers     []SubmittedAnswer
		wantScore   int
		wantCorrect int
		wantPassed  bool
	}{
		{
			name:        "all correct",
			answers:     []SubmittedAnswer{{QuestionID: "q1", SelectedAnswer: "4"}, {QuestionID: "q2", SelectedAnswer: "Paris"}, {QuestionID: "q3", SelectedAnswer: "Gopher"}},
			wantScore:   100,
			wantCorrect: 3,
			wantPassed:  true,
		},
		{
			name:        "weighted question missed",
			answers:     []SubmittedAnswer{{QuestionID: "q1", SelectedAnswer: "4"}, {QuestionID: "q2", SelectedAnswer: "Lyon"}, {QuestionID: "q3", SelectedAnswer: "Gopher"}},
			wantScore:   50,
			wantCorrect: 2,
		},
		{
			name:        "unanswered and unknown questions",
			answers:     []SubmittedAnswer{{QuestionID: "q2", SelectedAnswer: "Paris"}, {QuestionID: "q3", SelectedAnswer: "Gopher"}, {QuestionID: "q9", SelectedAnswer: "4"}},
			wantScore:   75,
			wantCorrect: 2,
			wantPassed:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt := Grade(quiz, QuizSubmission{Answers: tt.answers, TimeSpent: 90}, now)
			assert.Equal(t, tt.wantScore, attempt.Score)
			assert.Equal(t, tt.wantCorrect, attempt.CorrectAnswers)
			assert.Equal(t, tt.wantPassed, attempt.Passed)
			assert.Equal(t, 3, attempt.TotalQuestions)
			assert.Len(t, attempt.Answers, 3)
			assert.Equal(t, 90, attempt.TimeSpent)
		})
	}
}
