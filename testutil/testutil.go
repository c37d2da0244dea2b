// Package testutil wires the services on the in-memory store for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/token"
	"github.com/oasis-elearning/oasis/core/user"
	appfs "github.com/oasis-elearning/oasis/fs"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	logsvc "github.com/oasis-elearning/oasis/services/logger"
	inmemdb "github.com/oasis-elearning/oasis/storage/database/inmem"
)

const Password = "Sup3r-Secr3t!"

// Env bundles the repositories and services of a test.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *inmemdb.DB

	UserRepo     user.Repository
	CourseRepo   course.Repository
	ProgressRepo progress.Repository

	Tokens      *token.Issuer
	UserSvc     *user.Service
	CourseSvc   *course.Service
	ProgressSvc *progress.Service
}

func NewConf() *core.Config {
	conf := &core.Config{
		Env:       "test",
		TestMode:  true,
		AppName:   "Oasis",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			DisableReqLogs:     true,
			CORSOrigins:        []string{"*"},
		},
		Database:    core.DatabaseConfig{Engine: "memory"},
		Certificate: core.CertificateConfig{BaseURL: "http://oasis.test"},
	}
	conf.SetDefaultFromEmail("Oasis <learning@oasis.test>")
	return conf
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	progress.InitValidators(validate, translator)
	return validate, translator
}

// NewEnv wires every service on a fresh in-memory store. Emails are recorded by the console mock.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := NewConf()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	validate, translator := NewValidator()

	tokens, err := token.NewIssuer(conf.SecretKey, conf.AppName, conf.Server.JWTExpirationDelta)
	if err != nil {
		t.Fatalf("token.NewIssuer() failed: %v", err)
	}

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	db := inmemdb.Open()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	emailsvc.ClearSentMessages()

	env := &Env{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		DB:           db,
		UserRepo:     inmemdb.NewUserRepository(db),
		CourseRepo:   inmemdb.NewCourseRepository(db),
		ProgressRepo: inmemdb.NewProgressRepository(db),
		Tokens:       tokens,
	}
	env.UserSvc = user.NewService(env.UserRepo, mailSvc)
	env.CourseSvc = course.NewService(env.CourseRepo)
	env.ProgressSvc = progress.NewService(
		env.ProgressRepo,
		env.CourseSvc,
		progress.NewCertificateSigner(conf.SecretKey, conf.Certificate.BaseURL),
		mailSvc,
	)
	return env
}

// CreateUser stores an active user with password `Password`.
func CreateUser(t *testing.T, repo user.Repository, first, email, role, department string, isActive ...bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		FirstName:  first,
		LastName:   "Test",
		Email:      email,
		Role:       role,
		Department: department,
		IsActive:   len(isActive) == 0 || isActive[0],
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NewCourse returns an open, published course of `department` with two lessons; the second one has a
// single question quiz whose correct answer is "4".
func NewCourse(title, department string) course.Course {
	now := time.Now().UTC()
	c := course.Course{
		Title:       title,
		Description: "About " + title,
		Category:    course.CategoryTechnicalSkills,
		Department:  department,
		Level:       course.LevelBeginner,
		Instructor:  course.Instructor{Name: "Grace Hopper"},
		Lessons: []course.Lesson{
			{Title: "Introduction", Content: "Welcome", ContentType: course.ContentText, Duration: 10},
			{
				Title: "Arithmetic", Content: "2 + 2", ContentType: course.ContentText, Duration: 20,
				Quiz: &course.Quiz{Questions: []course.Question{{
					Question: "2 + 2 = ?",
					Options:  []course.Option{{Text: "3"}, {Text: "4", IsCorrect: true}},
				}}},
			},
		},
		Prerequisites:      []string{},
		Tags:               []string{"math"},
		LearningObjectives: []string{},
		Certification:      course.Certification{IsAvailable: true, ValidityPeriod: 12},
		Enrollment:         course.Enrollment{IsOpen: true},
		IsPublished:        true,
		PublishedAt:        &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	c.Normalize()
	return c
}

func CreateCourse(t *testing.T, repo course.Repository, c course.Course) course.Course {
	t.Helper()

	c, err := repo.CreateCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// Token issues a bearer token for `usr`.
func (env *Env) Token(t *testing.T, usr user.User) string {
	t.Helper()

	tok, err := env.Tokens.Issue(usr.ID)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return tok
}
