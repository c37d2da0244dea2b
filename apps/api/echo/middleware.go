package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core/access"
	"github.com/oasis-elearning/oasis/core/course"
)

const contextCourseKey = "course"

// ownerField reads the id of the user owning the requested resource from the `name` path param,
// query param or JSON body field, in that order. The body is restored for the handler.
func ownerField(ctx echo.Context, name string) (string, error) {
	if id := ctx.Param(name); id != "" {
		return id, nil
	}
	if id := ctx.QueryParam(name); id != "" {
		return id, nil
	}

	req := ctx.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return "", nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading request body")
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	var data map[string]interface{}
	if json.Unmarshal(body, &data) != nil {
		return "", nil
	}
	if v, ok := data[name]; ok && v != nil {
		return fmt.Sprint(v), nil
	}
	return "", nil
}

func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if err = access.RequireRole(usr, roles...); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func ownerOrAdminMiddleware(field string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			ownerID, err := ownerField(ctx, field)
			if err != nil {
				return err
			}
			if err = access.OwnerOrAdmin(usr, ownerID); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// courseAccessMiddleware loads the course named by the `id` path param and stores it in the context.
// Unpublished courses are only visible to admins.
func courseAccessMiddleware(svc *course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			c, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding course by ID")
			}
			if !c.IsPublished && !usr.IsAdmin() {
				return course.ErrNotFound
			}
			if err = access.CourseAccess(usr, c.Department); err != nil {
				return err
			}
			ctx.Set(contextCourseKey, c)
			return next(ctx)
		}
	}
}

func getContextCourse(ctx echo.Context) (course.Course, error) {
	if c, ok := ctx.Get(contextCourseKey).(course.Course); ok {
		return c, nil
	}
	return course.Course{}, errors.New("course not found in echo.Context")
}
