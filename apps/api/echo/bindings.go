package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/user"
)

var (
	orderingParam = "ordering"

	courseOrderingFields = []string{"title", "category", "level", "duration", "enrolled", "average_rating", "created_at"}
	userOrderingFields   = []string{"first_name", "last_name", "email", "department", "role", "is_active", "created_at", "last_login"}
)

// Ordering parses `?ordering=-created_at,title`; a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the ordering parameter, rejecting fields outside `allowed`.
func (ord *Ordering) Bind(ctx echo.Context, allowed []string) error {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		if !core.ContainsString(allowed, field) {
			msg := "cannot order by " + field
			return core.NewValidationError(errors.New(msg), core.FieldError{Field: orderingParam, Error: msg})
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}

// Pagination reads `?page=&limit=`.
type Pagination struct {
	Page  int
	Limit int
}

func (pg *Pagination) Bind(ctx echo.Context) (core.Page, error) {
	err := echo.QueryParamsBinder(ctx).
		Int("page", &pg.Page).
		Int("limit", &pg.Limit).
		BindError()
	if err != nil {
		return core.Page{}, err
	}
	return core.NewPage(pg.Page, pg.Limit), nil
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

type AuthResponse struct {
	Message string    `json:"message"`
	User    user.User `json:"user"`
	Token   string    `json:"token"`
}

type CourseListResponse struct {
	Message     string          `json:"message"`
	Courses     []course.Course `json:"courses"`
	TotalPages  int             `json:"total_pages"`
	CurrentPage int             `json:"current_page"`
	Total       int             `json:"total"`
}

type CourseResponse struct {
	Message  string             `json:"message"`
	Course   course.Course      `json:"course"`
	Progress *progress.Progress `json:"progress"`
}

type ProgressResponse struct {
	Message  string            `json:"message"`
	Progress progress.Progress `json:"progress"`
}

type ProgressListResponse struct {
	Message  string              `json:"message"`
	Progress []progress.Progress `json:"progress"`
}

type AttemptResponse struct {
	Message  string               `json:"message"`
	Progress progress.Progress    `json:"progress"`
	Attempt  progress.QuizAttempt `json:"attempt"`
}

type UserListResponse struct {
	Message     string      `json:"message"`
	Users       []user.User `json:"users"`
	TotalPages  int         `json:"total_pages"`
	CurrentPage int         `json:"current_page"`
	Total       int         `json:"total"`
}

type UserResponse struct {
	Message  string              `json:"message"`
	User     user.User           `json:"user"`
	Progress []progress.Progress `json:"progress,omitempty"`
}

type CertificateResponse struct {
	Message     string               `json:"message"`
	Certificate progress.Certificate `json:"certificate"`
	UserID      string               `json:"user_id"`
	CourseID    string               `json:"course_id"`
	IsHolder    bool                 `json:"is_holder,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type NoteResponse struct {
	Message  string            `json:"message"`
	Progress progress.Progress `json:"progress"`
	Note     progress.Note     `json:"note"`
}

type BookmarkResponse struct {
	Message  string            `json:"message"`
	Progress progress.Progress `json:"progress"`
	Bookmark progress.Bookmark `json:"bookmark"`
}

type DashboardResponse struct {
	Message string                  `json:"message"`
	Stats   progress.DashboardStats `json:"stats"`
}
