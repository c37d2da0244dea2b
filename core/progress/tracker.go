package progress

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ComputeOverallProgress returns round(100 * completed / total) over the lesson records, 0 without lessons.
func ComputeOverallProgress(p *Progress) int {
	total := len(p.Lessons)
	if total == 0 {
		return 0
	}
	completed := 0
	for _, l := range p.Lessons {
		if l.Status == StatusCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Refresh recomputes the overall progress and derives the status from it:
//
//	100       -> completed (completion time set once)
//	deadline  -> failed, once `deadline` has passed below 100
//	0         -> not-started
//	otherwise -> in-progress (start time set once)
//
// LastAccessedAt is always stamped with `now`. Every write path runs it before persisting.
func Refresh(p *Progress, now time.Time, deadline *time.Time) {
	now = now.UTC()
	p.OverallProgress = ComputeOverallProgress(p)

	switch {
	case p.OverallProgress == 100:
		p.Status = StatusCompleted
		if p.CompletedAt == nil {
			p.CompletedAt = &now
		}
	case deadline != nil && now.After(*deadline):
		p.Status = StatusFailed
	case p.OverallProgress == 0:
		p.Status = StatusNotStarted
	default:
		p.Status = StatusInProgress
		if p.StartedAt == nil {
			p.StartedAt = &now
		}
	}
	p.LastAccessedAt = now
}

// RecordActivity extends the daily activity streak of the record.
func RecordActivity(p *Progress, now time.Time) {
	p.Streak.Record(now)
}

// UpdateLesson applies a learner's report on one lesson; time spent accumulates on the lesson and the record.
func UpdateLesson(p *Progress, upd LessonUpdate, now time.Time) error {
	l := p.lesson(upd.LessonID)
	if l == nil {
		return ErrLessonNotFound
	}
	now = now.UTC()

	if upd.Status != "" {
		setLessonStatus(l, upd.Status, now)
	}
	if upd.TimeSpent > 0 {
		l.TimeSpent += upd.TimeSpent
		p.TotalTimeSpent += upd.TimeSpent
		if l.Status == StatusNotStarted {
			setLessonStatus(l, StatusInProgress, now)
		}
	}
	if upd.CurrentPosition != nil {
		l.CurrentPosition = *upd.CurrentPosition
	}
	return nil
}

func setLessonStatus(l *LessonProgress, status string, now time.Time) {
	l.Status = status
	if status != StatusNotStarted && l.StartedAt == nil {
		l.StartedAt = &now
	}
	if status == StatusCompleted && l.CompletedAt == nil {
		l.CompletedAt = &now
	}
}

// RecordQuizAttempt appends a graded attempt to the lesson quiz history and keeps the best score.
// A passing attempt completes the lesson. Scores are stored as given.
func RecordQuizAttempt(p *Progress, lessonID string, attempt QuizAttempt) (QuizAttempt, error) {
	l := p.lesson(lessonID)
	if l == nil {
		return QuizAttempt{}, ErrLessonNotFound
	}

	qr := p.quizResult(lessonID)
	if qr == nil {
		p.QuizResults = append(p.QuizResults, QuizResult{LessonID: lessonID})
		qr = &p.QuizResults[len(p.QuizResults)-1]
	}
	qr.TotalAttempts++
	attempt.AttemptNumber = qr.TotalAttempts
	qr.Attempts = append(qr.Attempts, attempt)
	qr.BestScore = maxInt(qr.BestScore, attempt.Score)

	completedAt := attempt.CompletedAt
	l.Attempts = append(l.Attempts, LessonAttempt{
		StartedAt:   attempt.StartedAt,
		CompletedAt: &completedAt,
		Score:       attempt.Score,
		Passed:      attempt.Passed,
		Answers:     attempt.Answers,
	})
	l.BestScore = maxInt(l.BestScore, attempt.Score)

	if attempt.Passed {
		setLessonStatus(l, StatusCompleted, attempt.CompletedAt)
	} else if l.Status == StatusNotStarted {
		setLessonStatus(l, StatusInProgress, attempt.CompletedAt)
	}
	return attempt, nil
}

// RecordFinalAssessment appends an attempt to the final assessment history and keeps the best score.
func RecordFinalAssessment(p *Progress, attempt QuizAttempt) QuizAttempt {
	fa := &p.FinalAssessment
	attempt.AttemptNumber = len(fa.Attempts) + 1
	fa.Attempts = append(fa.Attempts, attempt)
	fa.BestScore = maxInt(fa.BestScore, attempt.Score)
	fa.Passed = fa.Passed || attempt.Passed
	return attempt
}

// IssueCertificate records `cert` unless a certificate was already issued, in which case the
// existing one is returned untouched. The boolean reports whether `cert` was recorded.
func IssueCertificate(p *Progress, cert Certificate) (Certificate, bool) {
	if p.Certificate.Issued {
		return p.Certificate, false
	}
	cert.Issued = true
	p.Certificate = cert
	return cert, true
}

func AddNote(p *Progress, nn NewNote, now time.Time) (Note, error) {
	if p.lesson(nn.LessonID) == nil {
		return Note{}, ErrLessonNotFound
	}
	now = now.UTC()
	note := Note{
		ID:        uuid.NewString(),
		LessonID:  nn.LessonID,
		Content:   nn.Content,
		Timestamp: nn.Timestamp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Notes = append(p.Notes, note)
	return note, nil
}

func AddBookmark(p *Progress, nb NewBookmark, now time.Time) (Bookmark, error) {
	if p.lesson(nb.LessonID) == nil {
		return Bookmark{}, ErrLessonNotFound
	}
	bm := Bookmark{
		ID:          uuid.NewString(),
		LessonID:    nb.LessonID,
		Timestamp:   nb.Timestamp,
		Title:       nb.Title,
		Description: nb.Description,
		CreatedAt:   now.UTC(),
	}
	p.Bookmarks = append(p.Bookmarks, bm)
	return bm, nil
}

// Rate sets the single rating of the record and returns the stars it replaces (0 when none).
func Rate(p *Progress, nr NewRating, now time.Time) int {
	prev := 0
	if p.Rating != nil {
		prev = p.Rating.Stars
	}
	p.Rating = &Rating{Stars: nr.Stars, Review: nr.Review, SubmittedAt: now.UTC()}
	return prev
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
