package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/oasis-elearning/oasis/core"
)

// Roles
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

var (
	AllRoles = []string{RoleEmployee, RoleManager, RoleAdmin}

	Roles = []Role{
		{Name: "Employee", Value: RoleEmployee},
		{Name: "Manager", Value: RoleManager},
		{Name: "Admin", Value: RoleAdmin},
	}

	// bcrypt cost; lowered by the package tests.
	passwordHashCost = bcrypt.DefaultCost
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string      `json:"id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	Department   string      `json:"department"`
	Position     string      `json:"position"`
	IsActive     bool        `json:"is_active"`
	Stats        core.Streak `json:"stats"`
	PasswordHash []byte      `json:"-"`
	LastLogin    *time.Time  `json:"last_login"` // UTC
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

func (u *User) FullName() string {
	return core.CleanString(u.FirstName + " " + u.LastName)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), passwordHashCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsManager() bool { return u.Role == RoleManager }

// NewUser contains information needed to register a new User.
type NewUser struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required"`
	Department string `json:"department" validate:"required,max=100"`
	Position   string `json:"position" validate:"max=100"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.Position = core.CleanString(nu.Position)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

// UpdateProfile defines what a User may change about themselves.
type UpdateProfile struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Position  string `json:"position" validate:"max=100"`
}

func (up *UpdateProfile) Validate(origUsr User, validate *validator.Validate) error {
	up.FirstName = cleanOr(up.FirstName, origUsr.FirstName)
	up.LastName = cleanOr(up.LastName, origUsr.LastName)
	up.Position = cleanOr(up.Position, origUsr.Position)
	return validate.Struct(up)
}

// UpdateUser defines what information an admin may provide to modify an existing User.
type UpdateUser struct {
	FirstName  string `json:"first_name" validate:"max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	Email      string `json:"email" validate:"omitempty,email,max=254"`
	Department string `json:"department" validate:"max=100"`
	Position   string `json:"position" validate:"max=100"`
	Role       string `json:"role" validate:"omitempty,userrole"`
	IsActive   *bool  `json:"is_active"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc *Service) error {
	uu.FirstName = cleanOr(uu.FirstName, origUsr.FirstName)
	uu.LastName = cleanOr(uu.LastName, origUsr.LastName)
	uu.Department = cleanOr(uu.Department, origUsr.Department)
	uu.Position = cleanOr(uu.Position, origUsr.Position)
	uu.Role = cleanOr(uu.Role, origUsr.Role)

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.checkUniqueness(uu.Email, origUsr)
}

type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`

	// user attributes the new password must not resemble; not bound from requests
	usr User
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.usr = usr
	return validate.Struct(cp)
}

type QueryFilter struct {
	Search     string `query:"search"`
	Department string `query:"department"`
	Role       string `query:"role"`
	Status     string `query:"status"` // active | inactive
}

func (qf *QueryFilter) IsActive() *bool {
	var b bool
	switch qf.Status {
	case "active":
		b = true
	case "inactive":
		b = false
	default:
		return nil
	}
	return &b
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Department = core.CleanString(qf.Department)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// GetFilter selects a single User by one of its unique fields.
type GetFilter struct {
	ID    string
	Email string
}

func cleanOr(s, orig string) string {
	if s = core.CleanString(s); s != "" {
		return s
	}
	return orig
}
