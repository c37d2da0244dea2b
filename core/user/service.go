package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = core.NewAuthenticationError("invalid credentials")
	ErrAccountDeactivated = core.NewAuthenticationError("account is deactivated")
	errWrongPassword      = errors.New("current password is incorrect")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if another user (not in excludedUsers) owns `email`.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of first name, last name or email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]User, int, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

func NewService(repo Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, mailSvc: mailSvc}
}

func (svc *Service) checkUniqueness(email string, exclUsers ...User) error {
	return trapEmailExists(svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...))
}

// trapEmailExists turns the storage uniqueness error into a conflict.
func trapEmailExists(err error) error {
	if err == ErrEmailExists {
		return core.NewConflictError(err)
	}
	return err
}

// Register creates an active employee account and greets them by email.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		FirstName:  nu.FirstName,
		LastName:   nu.LastName,
		Email:      nu.Email,
		Role:       RoleEmployee,
		Department: nu.Department,
		Position:   nu.Position,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "user.Register: SetPassword()")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, trapEmailExists(err)
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// Authenticate checks credentials and records the login (last login and daily streak).
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	now := nowFunc().UTC()
	usr.LastLogin = &now
	usr.Stats.Record(now)
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]User, int, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter, ordering, page)
}

func (svc *Service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	usr.FirstName = up.FirstName
	usr.LastName = up.LastName
	usr.Position = up.Position
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Update applies an admin modification to `usr`.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Email = uu.Email
	usr.Department = uu.Department
	usr.Position = uu.Position
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = nowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, trapEmailExists(err)
}

// ChangePassword replaces the password of `usr` once the current one is confirmed.
// The stored hash is left untouched on any failure.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) error {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return core.NewValidationError(errWrongPassword, core.FieldError{
			Field: "current_password",
			Error: errWrongPassword.Error(),
		})
	}
	return svc.SetPassword(ctx, usr, cp.NewPassword)
}

func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "user.SetPassword: SetPassword()")
	}
	usr.UpdatedAt = nowFunc().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return err
}

// Deactivate marks the account inactive; tokens issued to it stop being accepted.
func (svc *Service) Deactivate(ctx context.Context, usr User) (User, error) {
	usr.IsActive = false
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:       []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:  "Welcome aboard!",
		Template: core.TemplateWelcome,
		Data: map[string]interface{}{
			"FirstName":  usr.FirstName,
			"Department": usr.Department,
		},
	})
}
