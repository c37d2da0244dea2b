package progress

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound                 = core.NewNotFoundError("progress")
	ErrLessonNotFound           = core.NewNotFoundError("lesson")
	ErrCertificateNotFound      = core.NewNotFoundError("certificate")
	ErrAlreadyEnrolled          = core.NewConflictError(errors.New("already enrolled in this course"))
	ErrNoQuiz                   = core.NewValidationError(errors.New("this lesson has no quiz"))
	ErrCourseNotCompleted       = core.NewValidationError(errors.New("course must be completed to get a certificate"))
	ErrCertificationUnavailable = core.NewValidationError(errors.New("this course does not deliver certificates"))
)

type (
	Repository interface {
		// CreateProgress inserts `p` or returns ErrAlreadyEnrolled when the (user, course) pair is taken.
		CreateProgress(ctx context.Context, p Progress) (Progress, error)
		GetProgress(ctx context.Context, userID, courseID string) (Progress, error)
		GetProgressByID(ctx context.Context, id string) (Progress, error)
		QueryProgress(ctx context.Context, filter QueryFilter) ([]Progress, error)
		UpdateProgress(ctx context.Context, p Progress) (Progress, error)
		DeleteProgress(ctx context.Context, id string) error
	}

	Service struct {
		repo    Repository
		courses *course.Service
		signer  *CertificateSigner
		mailSvc core.EmailService

		rating sync.Mutex // serializes the read-modify-write of Rate
	}
)

func NewService(repo Repository, courses *course.Service, signer *CertificateSigner, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, courses: courses, signer: signer, mailSvc: mailSvc}
}

// Enroll creates the progress record of `usr` for course `c` and bumps the course enrolled counter.
// Duplicates are rejected by the storage layer; the lookup beforehand only spares a failed insert.
func (svc *Service) Enroll(ctx context.Context, usr user.User, c course.Course) (Progress, error) {
	if _, err := svc.repo.GetProgress(ctx, usr.ID, c.ID); err == nil {
		return Progress{}, ErrAlreadyEnrolled
	} else if !core.IsNotFound(err) {
		return Progress{}, err
	}

	now := nowFunc().UTC()
	if err := c.CheckEnrollment(now); err != nil {
		return Progress{}, err
	}

	p := Progress{
		ID:         uuid.NewString(),
		UserID:     usr.ID,
		CourseID:   c.ID,
		EnrolledAt: now,
		Lessons:    make([]LessonProgress, 0, len(c.Lessons)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, l := range c.Lessons {
		p.Lessons = append(p.Lessons, LessonProgress{LessonID: l.ID, Status: StatusNotStarted})
	}
	Refresh(&p, now, c.Deadline())

	p, err := svc.repo.CreateProgress(ctx, p)
	if err != nil {
		return Progress{}, err
	}

	if err = svc.courses.IncrementEnrolled(ctx, c.ID); err != nil {
		// the enrollment only counts once both writes succeeded
		if dErr := svc.repo.DeleteProgress(ctx, p.ID); dErr != nil {
			return Progress{}, errors.Wrapf(err, "progress.Enroll: rollback failed: %v", dErr)
		}
		return Progress{}, err
	}
	return p, nil
}

func (svc *Service) Get(ctx context.Context, userID, courseID string) (Progress, error) {
	return svc.repo.GetProgress(ctx, userID, courseID)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Progress, error) {
	return svc.repo.QueryProgress(ctx, filter)
}

// save is the only write path of an existing record: it extends the streak and refreshes
// the overall progress and status before persisting.
func (svc *Service) save(ctx context.Context, p Progress, c course.Course) (Progress, error) {
	now := nowFunc().UTC()
	RecordActivity(&p, now)
	Refresh(&p, now, c.Deadline())
	p.UpdatedAt = now
	return svc.repo.UpdateProgress(ctx, p)
}

// load fetches the course and the caller's progress on it.
func (svc *Service) load(ctx context.Context, userID, courseID string) (Progress, course.Course, error) {
	c, err := svc.courses.GetByID(ctx, courseID)
	if err != nil {
		return Progress{}, course.Course{}, err
	}
	p, err := svc.repo.GetProgress(ctx, userID, courseID)
	if err != nil {
		return Progress{}, course.Course{}, err
	}
	return p, c, nil
}

func (svc *Service) Update(ctx context.Context, userID, courseID string, up UpdateProgress) (Progress, error) {
	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, err
	}

	now := nowFunc()
	for _, lu := range up.Lessons {
		if err = UpdateLesson(&p, lu, now); err != nil {
			return Progress{}, err
		}
	}
	p.TotalTimeSpent += up.TimeSpent
	return svc.save(ctx, p, c)
}

// SubmitQuiz grades the answers against the lesson quiz and records the attempt.
func (svc *Service) SubmitQuiz(ctx context.Context, userID, courseID, lessonID string, sub QuizSubmission) (Progress, QuizAttempt, error) {
	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, QuizAttempt{}, err
	}
	lesson, ok := c.Lesson(lessonID)
	if !ok {
		return Progress{}, QuizAttempt{}, ErrLessonNotFound
	}
	if lesson.Quiz == nil || len(lesson.Quiz.Questions) == 0 {
		return Progress{}, QuizAttempt{}, ErrNoQuiz
	}

	attempt, err := RecordQuizAttempt(&p, lessonID, Grade(*lesson.Quiz, sub, nowFunc()))
	if err != nil {
		return Progress{}, QuizAttempt{}, err
	}
	p, err = svc.save(ctx, p, c)
	return p, attempt, err
}

func (svc *Service) SubmitAssessment(ctx context.Context, userID, courseID string, sub AssessmentSubmission) (Progress, QuizAttempt, error) {
	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, QuizAttempt{}, err
	}

	now := nowFunc().UTC()
	attempt := QuizAttempt{
		StartedAt:      now,
		CompletedAt:    now,
		Score:          sub.Score,
		TotalQuestions: sub.TotalQuestions,
		CorrectAnswers: sub.CorrectAnswers,
		Passed:         sub.Score >= course.DefaultPassingScore,
		TimeSpent:      sub.TimeSpent,
	}
	if sub.StartedAt != nil && !sub.StartedAt.After(now) {
		attempt.StartedAt = sub.StartedAt.UTC()
	}
	for _, a := range sub.Answers {
		attempt.Answers = append(attempt.Answers, Answer{QuestionID: a.QuestionID, SelectedAnswer: a.SelectedAnswer, TimeSpent: a.TimeSpent})
	}

	attempt = RecordFinalAssessment(&p, attempt)
	p, err = svc.save(ctx, p, c)
	return p, attempt, err
}

func (svc *Service) AddNote(ctx context.Context, userID, courseID string, nn NewNote) (Progress, Note, error) {
	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, Note{}, err
	}
	nn.Content = core.CleanString(nn.Content)
	note, err := AddNote(&p, nn, nowFunc())
	if err != nil {
		return Progress{}, Note{}, err
	}
	p, err = svc.save(ctx, p, c)
	return p, note, err
}

func (svc *Service) AddBookmark(ctx context.Context, userID, courseID string, nb NewBookmark) (Progress, Bookmark, error) {
	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, Bookmark{}, err
	}
	nb.Title = core.CleanString(nb.Title)
	bm, err := AddBookmark(&p, nb, nowFunc())
	if err != nil {
		return Progress{}, Bookmark{}, err
	}
	p, err = svc.save(ctx, p, c)
	return p, bm, err
}

// Rate records the caller's rating and folds it into the course stats, replacing a previous one.
// The course stats are applied first and withdrawn again when the record cannot be saved.
func (svc *Service) Rate(ctx context.Context, userID, courseID string, nr NewRating) (Progress, error) {
	svc.rating.Lock()
	defer svc.rating.Unlock()

	p, c, err := svc.load(ctx, userID, courseID)
	if err != nil {
		return Progress{}, err
	}
	nr.Review = core.CleanString(nr.Review)
	prev := Rate(&p, nr, nowFunc())

	if err = svc.courses.ApplyRating(ctx, c.ID, prev, nr.Stars); err != nil {
		return Progress{}, err
	}
	saved, err := svc.save(ctx, p, c)
	if err != nil {
		// restores the replaced rating, or withdraws a first one
		if undo := svc.courses.ApplyRating(ctx, c.ID, nr.Stars, prev); undo != nil {
			return Progress{}, errors.Wrapf(err, "progress.Rate: rollback failed: %v", undo)
		}
		return Progress{}, err
	}
	return saved, nil
}

// IssueCertificate delivers the certificate of a completed course. Issuing again returns
// the certificate delivered the first time.
func (svc *Service) IssueCertificate(ctx context.Context, usr user.User, courseID string) (Progress, error) {
	p, c, err := svc.load(ctx, usr.ID, courseID)
	if err != nil {
		return Progress{}, err
	}
	if p.Certificate.Issued {
		return p, nil
	}
	if p.Status != StatusCompleted {
		return Progress{}, ErrCourseNotCompleted
	}
	if !c.Certification.IsAvailable {
		return Progress{}, ErrCertificationUnavailable
	}

	now := nowFunc().UTC()
	validUntil := c.Certification.ValidUntil(now)
	certID := svc.signer.MakeID(p.ID, now)
	cert, _ := IssueCertificate(&p, Certificate{
		IssuedAt:      &now,
		CertificateID: certID,
		DownloadURL:   svc.signer.DownloadURL(certID),
		ValidUntil:    &validUntil,
	})

	if p, err = svc.save(ctx, p, c); err != nil {
		return Progress{}, err
	}
	svc.sendCertificateMail(usr, c, cert)
	return p, nil
}

// VerifyCertificate checks the certificate id signature, then returns the record holding it.
func (svc *Service) VerifyCertificate(ctx context.Context, certID string) (Progress, error) {
	progressID, err := svc.signer.VerifyID(certID)
	if err != nil {
		return Progress{}, ErrCertificateNotFound
	}
	p, err := svc.repo.GetProgressByID(ctx, progressID)
	if err != nil {
		if core.IsNotFound(err) {
			return Progress{}, ErrCertificateNotFound
		}
		return Progress{}, err
	}
	if !p.Certificate.Issued || p.Certificate.CertificateID != certID {
		return Progress{}, ErrCertificateNotFound
	}
	return p, nil
}

func (svc *Service) Dashboard(ctx context.Context, usr user.User) (DashboardStats, error) {
	records, err := svc.repo.QueryProgress(ctx, QueryFilter{UserID: usr.ID})
	if err != nil {
		return DashboardStats{}, err
	}
	return ComputeDashboard(records, usr.Stats), nil
}

func (svc *Service) sendCertificateMail(usr user.User, c course.Course, cert Certificate) {
	validUntil := ""
	if cert.ValidUntil != nil {
		validUntil = cert.ValidUntil.Format("January 2, 2006")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:       []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:  fmt.Sprintf("Your certificate for %s", c.Title),
		Template: core.TemplateCertificateIssued,
		Category: "certificate",
		Data: map[string]interface{}{
			"FirstName":     usr.FirstName,
			"CourseTitle":   c.Title,
			"CertificateID": cert.CertificateID,
			"DownloadURL":   cert.DownloadURL,
			"ValidUntil":    validUntil,
		},
	})
}
