package progress

import (
	"math"
	"time"

	"github.com/oasis-elearning/oasis/core/course"
)

// Grade scores a quiz submission against the lesson quiz. Questions left unanswered count as wrong,
// answers to unknown questions are ignored. The score is the percentage of points earned.
func Grade(quiz course.Quiz, sub QuizSubmission, now time.Time) QuizAttempt {
	now = now.UTC()
	selected := make(map[string]SubmittedAnswer, len(sub.Answers))
	for _, a := range sub.Answers {
		selected[a.QuestionID] = a
	}

	attempt := QuizAttempt{
		StartedAt:      now,
		CompletedAt:    now,
		TotalQuestions: len(quiz.Questions),
		TimeSpent:      sub.TimeSpent,
		Answers:        make([]Answer, 0, len(quiz.Questions)),
	}
	if sub.StartedAt != nil && !sub.StartedAt.After(now) {
		attempt.StartedAt = sub.StartedAt.UTC()
	}

	earned, total := 0, quiz.TotalPoints()
	for _, qn := range quiz.Questions {
		sa := selected[qn.ID]
		ans := Answer{
			QuestionID:     qn.ID,
			Question:       qn.Question,
			SelectedAnswer: sa.SelectedAnswer,
			CorrectAnswer:  qn.CorrectAnswer(),
			IsCorrect:      sa.SelectedAnswer != "" && qn.IsCorrect(sa.SelectedAnswer),
			TimeSpent:      sa.TimeSpent,
		}
		if ans.IsCorrect {
			ans.Points = qn.Points
			earned += qn.Points
			attempt.CorrectAnswers++
		}
		attempt.Answers = append(attempt.Answers, ans)
	}

	if total > 0 {
		attempt.Score = int(math.Round(100 * float64(earned) / float64(total)))
	}
	attempt.Passed = attempt.Score >= quiz.PassingScore
	return attempt
}
