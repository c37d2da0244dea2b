package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/user"
)

const contextObjectKey = "object"

var errSelfDeactivation = errors.New("you cannot deactivate your own account")

type userApi struct {
	svc         *user.Service
	progressSvc *progress.Service
	validate    *validator.Validate
}

func registerUserAPI(g *echo.Group, auth *authenticator, deps *Deps) {
	api := userApi{
		svc:         deps.UserSvc,
		progressSvc: deps.ProgressSvc,
		validate:    deps.Validate,
	}

	ug := g.Group("/users", auth.required())

	// self endpoints
	ug.GET("/profile", api.profile)
	ug.PUT("/profile", api.updateProfile)
	ug.PUT("/change-password", api.changePassword)
	ug.GET("/dashboard/stats", api.dashboard)

	// directory endpoints
	ug.GET("", api.query, roleMiddleware(user.RoleAdmin, user.RoleManager))

	// detail endpoints
	ug.GET("/:userId", api.retrieve, roleMiddleware(user.RoleAdmin, user.RoleManager), api.ctxObjectMiddleware)
	ug.PUT("/:userId", api.update, roleMiddleware(user.RoleAdmin), api.ctxObjectMiddleware)
	ug.DELETE("/:userId", api.destroy, roleMiddleware(user.RoleAdmin), api.ctxObjectMiddleware)
}

// ctxObjectMiddleware loads the user named by the `userId` path param.
func (api *userApi) ctxObjectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("userId"))
		if err != nil {
			return errors.Wrap(err, "finding user by ID")
		}
		ctx.Set(contextObjectKey, usr)
		return next(ctx)
	}
}

func getContextObject(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextObjectKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errors.New("user object not found in echo.Context")
}

// Handlers

func (api *userApi) profile(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{Message: "Profile retrieved successfully", User: usr})
}

func (api *userApi) updateProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, UserResponse{Message: "Profile updated successfully", User: usr})
}

func (api *userApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	if err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

func (api *userApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	stats, err := api.progressSvc.Dashboard(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, DashboardResponse{Message: "Dashboard stats retrieved successfully", Stats: stats})
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to user.QueryFilter")
	}

	var ord Ordering
	if err := ord.Bind(ctx, userOrderingFields); err != nil {
		return err
	}
	var pg Pagination
	page, err := pg.Bind(ctx)
	if err != nil {
		return err
	}

	users, total, err := api.svc.Query(ctx.Request().Context(), filter, ord.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}

	return ctx.JSON(http.StatusOK, UserListResponse{
		Message:     "Users retrieved successfully",
		Users:       users,
		TotalPages:  page.TotalPages(total),
		CurrentPage: page.Number,
		Total:       total,
	})
}

func (api *userApi) retrieve(ctx echo.Context) error {
	obj, err := getContextObject(ctx)
	if err != nil {
		return err
	}

	records, err := api.progressSvc.Query(ctx.Request().Context(), progress.QueryFilter{UserID: obj.ID})
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return ctx.JSON(http.StatusOK, UserResponse{Message: "User retrieved successfully", User: obj, Progress: records})
}

func (api *userApi) update(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	obj, err := getContextObject(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(obj, api.validate, api.svc); err != nil {
		return err
	}
	if obj.ID == ctxUsr.ID && data.IsActive != nil && !*data.IsActive {
		return core.NewValidationError(errSelfDeactivation, core.FieldError{Field: "is_active", Error: errSelfDeactivation.Error()})
	}

	obj, err = api.svc.Update(ctx.Request().Context(), obj, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, UserResponse{Message: "User updated successfully", User: obj})
}

// destroy deactivates the account; records are kept.
func (api *userApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	obj, err := getContextObject(ctx)
	if err != nil {
		return err
	}
	if obj.ID == ctxUsr.ID {
		return core.NewValidationError(errSelfDeactivation)
	}

	if _, err = api.svc.Deactivate(ctx.Request().Context(), obj); err != nil {
		return errors.Wrap(err, "deactivating user")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "User deactivated successfully"})
}
