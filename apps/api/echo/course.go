package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/user"
)

type courseApi struct {
	svc         *course.Service
	progressSvc *progress.Service
	validate    *validator.Validate
}

func registerCourseAPI(g *echo.Group, auth *authenticator, deps *Deps) {
	api := courseApi{
		svc:         deps.CourseSvc,
		progressSvc: deps.ProgressSvc,
		validate:    deps.Validate,
	}

	cg := g.Group("/courses")
	cg.GET("", api.query, auth.required())
	cg.POST("", api.create, auth.required(), roleMiddleware(user.RoleAdmin))

	// detail endpoints
	dg := cg.Group("/:id", auth.required(), courseAccessMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.POST("/enroll", api.enroll)
	dg.PUT("", api.update, roleMiddleware(user.RoleAdmin))
	dg.DELETE("", api.destroy, roleMiddleware(user.RoleAdmin))
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var filter course.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to course.QueryFilter")
	}
	filter.IncludeUnpublished = usr.IsAdmin()

	var ord Ordering
	if err = ord.Bind(ctx, courseOrderingFields); err != nil {
		return err
	}
	var pg Pagination
	page, err := pg.Bind(ctx)
	if err != nil {
		return err
	}

	courses, total, err := api.svc.Query(ctx.Request().Context(), filter, ord.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}

	return ctx.JSON(http.StatusOK, CourseListResponse{
		Message:     "Courses retrieved successfully",
		Courses:     courses,
		TotalPages:  page.TotalPages(total),
		CurrentPage: page.Number,
		Total:       total,
	})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	resp := CourseResponse{Message: "Course retrieved successfully", Course: c}
	p, err := api.progressSvc.Get(ctx.Request().Context(), usr.ID, c.ID)
	switch {
	case err == nil:
		resp.Progress = &p
	case !core.IsNotFound(err):
		return errors.Wrap(err, "finding progress")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	p, err := api.progressSvc.Enroll(ctx.Request().Context(), usr, c)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, ProgressResponse{Message: "Successfully enrolled in course", Progress: p})
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data course.CourseInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, CourseResponse{Message: "Course created successfully", Course: c})
}

func (api *courseApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.CourseInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, CourseResponse{Message: "Course updated successfully", Course: c})
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Course deleted successfully"})
}
