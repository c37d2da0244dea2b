package progress

import (
	"time"

	"github.com/oasis-elearning/oasis/core"
)

// Statuses
const (
	StatusNotStarted = "not-started"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var LessonStatuses = []string{StatusNotStarted, StatusInProgress, StatusCompleted}

type (
	// Progress is the per user, per course aggregate of completion and scoring state.
	Progress struct {
		ID              string           `json:"id"`
		UserID          string           `json:"user_id"`
		CourseID        string           `json:"course_id"`
		Status          string           `json:"status"`
		EnrolledAt      time.Time        `json:"enrolled_at"`
		StartedAt       *time.Time       `json:"started_at"`
		CompletedAt     *time.Time       `json:"completed_at"`
		LastAccessedAt  time.Time        `json:"last_accessed_at"`
		TotalTimeSpent  int              `json:"total_time_spent"` // minutes
		OverallProgress int              `json:"overall_progress"` // 0-100
		Lessons         []LessonProgress `json:"lessons_progress"`
		QuizResults     []QuizResult     `json:"quiz_results"`
		FinalAssessment FinalAssessment  `json:"final_assessment"`
		Certificate     Certificate      `json:"certificate"`
		Notes           []Note           `json:"notes"`
		Bookmarks       []Bookmark       `json:"bookmarks"`
		Rating          *Rating          `json:"rating"`
		Streak          core.Streak      `json:"streak"`
		CreatedAt       time.Time        `json:"created_at"`
		UpdatedAt       time.Time        `json:"updated_at"`
	}

	LessonProgress struct {
		LessonID        string          `json:"lesson_id"`
		Status          string          `json:"status"`
		StartedAt       *time.Time      `json:"started_at"`
		CompletedAt     *time.Time      `json:"completed_at"`
		TimeSpent       int             `json:"time_spent"` // minutes
		Attempts        []LessonAttempt `json:"attempts"`
		BestScore       int             `json:"best_score"`
		CurrentPosition int             `json:"current_position"` // seconds, for video/interactive content
	}

	LessonAttempt struct {
		StartedAt   time.Time  `json:"started_at"`
		CompletedAt *time.Time `json:"completed_at"`
		Score       int        `json:"score"`
		Passed      bool       `json:"passed"`
		Answers     []Answer   `json:"answers"`
	}

	Answer struct {
		QuestionID     string `json:"question_id"`
		Question       string `json:"question,omitempty"`
		SelectedAnswer string `json:"selected_answer"`
		CorrectAnswer  string `json:"correct_answer,omitempty"`
		IsCorrect      bool   `json:"is_correct"`
		Points         int    `json:"points"`
		TimeSpent      int    `json:"time_spent"` // seconds
	}

	QuizResult struct {
		LessonID      string        `json:"lesson_id"`
		Attempts      []QuizAttempt `json:"attempts"`
		BestScore     int           `json:"best_score"`
		TotalAttempts int           `json:"total_attempts"`
	}

	QuizAttempt struct {
		AttemptNumber  int       `json:"attempt_number"`
		StartedAt      time.Time `json:"started_at"`
		CompletedAt    time.Time `json:"completed_at"`
		Score          int       `json:"score"`
		TotalQuestions int       `json:"total_questions"`
		CorrectAnswers int       `json:"correct_answers"`
		Passed         bool      `json:"passed"`
		TimeSpent      int       `json:"time_spent"` // seconds
		Answers        []Answer  `json:"answers"`
	}

	FinalAssessment struct {
		Attempts  []QuizAttempt `json:"attempts"`
		BestScore int           `json:"best_score"`
		Passed    bool          `json:"passed"`
	}

	Certificate struct {
		Issued        bool       `json:"issued"`
		IssuedAt      *time.Time `json:"issued_at"`
		CertificateID string     `json:"certificate_id"`
		DownloadURL   string     `json:"download_url"`
		ValidUntil    *time.Time `json:"valid_until"`
	}

	Note struct {
		ID        string    `json:"id"`
		LessonID  string    `json:"lesson_id"`
		Content   string    `json:"content"`
		Timestamp int       `json:"timestamp"` // seconds into the lesson content
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	Bookmark struct {
		ID          string    `json:"id"`
		LessonID    string    `json:"lesson_id"`
		Timestamp   int       `json:"timestamp"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Rating struct {
		Stars       int       `json:"stars"`
		Review      string    `json:"review"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
)

func (p *Progress) lesson(id string) *LessonProgress {
	for i := range p.Lessons {
		if p.Lessons[i].LessonID == id {
			return &p.Lessons[i]
		}
	}
	return nil
}

func (p *Progress) quizResult(lessonID string) *QuizResult {
	for i := range p.QuizResults {
		if p.QuizResults[i].LessonID == lessonID {
			return &p.QuizResults[i]
		}
	}
	return nil
}

// LessonUpdate is a learner's report on a single lesson.
type LessonUpdate struct {
	LessonID        string `json:"lesson_id" validate:"required"`
	Status          string `json:"status" validate:"omitempty,lessonstatus"`
	TimeSpent       int    `json:"time_spent" validate:"min=0"` // minutes to add
	CurrentPosition *int   `json:"current_position" validate:"omitempty,min=0"`
}

type UpdateProgress struct {
	Lessons   []LessonUpdate `json:"lessons" validate:"omitempty,dive"`
	TimeSpent int            `json:"time_spent" validate:"min=0"` // minutes not tied to a lesson
}

type SubmittedAnswer struct {
	QuestionID     string `json:"question_id" validate:"required"`
	SelectedAnswer string `json:"selected_answer"`
	TimeSpent      int    `json:"time_spent" validate:"min=0"` // seconds
}

type QuizSubmission struct {
	Answers   []SubmittedAnswer `json:"answers" validate:"required,min=1,dive"`
	StartedAt *time.Time        `json:"started_at"`
	TimeSpent int               `json:"time_spent" validate:"min=0"` // seconds
}

type AssessmentSubmission struct {
	Score          int               `json:"score" validate:"min=0,max=100"`
	TotalQuestions int               `json:"total_questions" validate:"min=0"`
	CorrectAnswers int               `json:"correct_answers" validate:"min=0,ltefield=TotalQuestions"`
	Answers        []SubmittedAnswer `json:"answers" validate:"dive"`
	StartedAt      *time.Time        `json:"started_at"`
	TimeSpent      int               `json:"time_spent" validate:"min=0"` // seconds
}

type NewNote struct {
	LessonID  string `json:"lesson_id" validate:"required"`
	Content   string `json:"content" validate:"required,notblank,max=5000"`
	Timestamp int    `json:"timestamp" validate:"min=0"`
}

type NewBookmark struct {
	LessonID    string `json:"lesson_id" validate:"required"`
	Timestamp   int    `json:"timestamp" validate:"min=0"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=1000"`
}

type NewRating struct {
	Stars  int    `json:"stars" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}

type QueryFilter struct {
	UserID   string
	CourseID string
	Status   string
}
