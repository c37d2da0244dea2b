package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound             = core.NewNotFoundError("course")
	ErrEnrollmentClosed     = core.NewValidationError(errors.New("enrollment is closed for this course"))
	ErrEnrollmentNotStarted = core.NewValidationError(errors.New("enrollment has not started yet"))
	ErrCourseFull           = core.NewValidationError(errors.New("course has reached its enrollment capacity"))
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on title, description or tags.
		QueryCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Course, int, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		// DeleteCourse removes the course and every progress record attached to it.
		DeleteCourse(ctx context.Context, id string) error
		// IncrementEnrolled atomically increments the enrolled counter, or returns ErrCourseFull
		// when the capacity is already reached.
		IncrementEnrolled(ctx context.Context, id string) error
		// ApplyRating atomically folds a rating into the course stats.
		// prevStars is 0 for a first rating, otherwise the rating being replaced.
		// A zero stars withdraws prevStars.
		ApplyRating(ctx context.Context, id string, prevStars, stars int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (in *CourseInput) Validate(validate *validator.Validate) error {
	in.clean()
	return validate.Struct(in)
}

func (svc *Service) Create(ctx context.Context, in CourseInput, actorID string) (Course, error) {
	now := nowFunc().UTC()
	c := Course{CreatedBy: actorID, LastUpdatedBy: actorID, CreatedAt: now, UpdatedAt: now}
	in.apply(&c)
	c.Normalize()
	return svc.repo.CreateCourse(ctx, c)
}

// Update replaces the editable fields of `c`; counters, stats and authorship are preserved.
func (svc *Service) Update(ctx context.Context, c Course, in CourseInput, actorID string) (Course, error) {
	c.UpdatedAt = nowFunc().UTC()
	c.LastUpdatedBy = actorID
	in.apply(&c)
	c.Normalize()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Course, int, error) {
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter, ordering, page)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

func (svc *Service) IncrementEnrolled(ctx context.Context, id string) error {
	return svc.repo.IncrementEnrolled(ctx, id)
}

func (svc *Service) ApplyRating(ctx context.Context, id string, prevStars, stars int) error {
	return svc.repo.ApplyRating(ctx, id, prevStars, stars)
}
