package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core/progress"
)

type progressApi struct {
	svc      *progress.Service
	validate *validator.Validate
}

func registerProgressAPI(g *echo.Group, auth *authenticator, deps *Deps) {
	api := progressApi{
		svc:      deps.ProgressSvc,
		validate: deps.Validate,
	}

	pg := g.Group("/progress", auth.required())
	pg.GET("", api.query, ownerOrAdminMiddleware("user_id"))

	// own progress on a course
	cg := pg.Group("/course/:courseId")
	cg.GET("", api.retrieve)
	cg.PUT("", api.update)
	cg.POST("/lessons/:lessonId/quiz", api.submitQuiz)
	cg.POST("/assessment", api.submitAssessment)
	cg.POST("/notes", api.addNote)
	cg.POST("/bookmarks", api.addBookmark)
	cg.PUT("/rating", api.rate)
	cg.POST("/certificate", api.issueCertificate)
}

// Handlers

func (api *progressApi) query(ctx echo.Context) error {
	var filter progress.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		String("user_id", &filter.UserID).
		String("course_id", &filter.CourseID).
		String("status", &filter.Status).
		BindError()
	if err != nil {
		return err
	}

	records, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return ctx.JSON(http.StatusOK, ProgressListResponse{Message: "Progress retrieved successfully", Progress: records})
}

func (api *progressApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Get(ctx.Request().Context(), usr.ID, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "finding progress")
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Message: "Progress retrieved successfully", Progress: p})
}

func (api *progressApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.UpdateProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Message: "Progress updated successfully", Progress: p})
}

func (api *progressApi) submitQuiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.QuizSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizSubmission")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, attempt, err := api.svc.SubmitQuiz(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lessonId"), data)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusOK, AttemptResponse{Message: "Quiz submitted successfully", Progress: p, Attempt: attempt})
}

func (api *progressApi) submitAssessment(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.AssessmentSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssessmentSubmission")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, attempt, err := api.svc.SubmitAssessment(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "submitting assessment")
	}
	return ctx.JSON(http.StatusOK, AttemptResponse{Message: "Assessment submitted successfully", Progress: p, Attempt: attempt})
}

func (api *progressApi) addNote(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.NewNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, note, err := api.svc.AddNote(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "adding note")
	}
	return ctx.JSON(http.StatusCreated, NoteResponse{Message: "Note added successfully", Progress: p, Note: note})
}

func (api *progressApi) addBookmark(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.NewBookmark
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBookmark")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, bm, err := api.svc.AddBookmark(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "adding bookmark")
	}
	return ctx.JSON(http.StatusCreated, BookmarkResponse{Message: "Bookmark added successfully", Progress: p, Bookmark: bm})
}

func (api *progressApi) rate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data progress.NewRating
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRating")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	p, err := api.svc.Rate(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "rating course")
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{Message: "Rating submitted successfully", Progress: p})
}

func (api *progressApi) issueCertificate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	p, err := api.svc.IssueCertificate(ctx.Request().Context(), usr, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "issuing certificate")
	}
	return ctx.JSON(http.StatusOK, CertificateResponse{
		Message:     "Certificate issued successfully",
		Certificate: p.Certificate,
		UserID:      p.UserID,
		CourseID:    p.CourseID,
	})
}

type certificateApi struct {
	svc *progress.Service
}

// registerCertificateAPI exposes the public verification; a signed-in holder is recognized.
func registerCertificateAPI(g *echo.Group, auth *authenticator, deps *Deps) {
	api := certificateApi{svc: deps.ProgressSvc}
	g.GET("/certificates/:certificateId/verify", api.verify, auth.optional())
}

func (api *certificateApi) verify(ctx echo.Context) error {
	p, err := api.svc.VerifyCertificate(ctx.Request().Context(), ctx.Param("certificateId"))
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}
	usr, ok := contextUser(ctx)
	return ctx.JSON(http.StatusOK, CertificateResponse{
		Message:     "Certificate is valid",
		Certificate: p.Certificate,
		UserID:      p.UserID,
		CourseID:    p.CourseID,
		IsHolder:    ok && usr.ID == p.UserID,
	})
}
