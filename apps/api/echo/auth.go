package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/token"
	"github.com/oasis-elearning/oasis/core/user"
)

const (
	contextUserKey = "user"
	bearerScheme   = "Bearer"
)

// authenticator resolves the bearer token of a request into an active user.
type authenticator struct {
	tokens *token.Issuer
	users  *user.Service
}

func newAuthenticator(tokens *token.Issuer, users *user.Service) *authenticator {
	return &authenticator{tokens: tokens, users: users}
}

func (a *authenticator) subject(ctx echo.Context) (user.User, error) {
	scheme, tokenStr, found := strings.Cut(ctx.Request().Header.Get(echo.HeaderAuthorization), " ")
	tokenStr = strings.TrimSpace(tokenStr)
	if !found || !strings.EqualFold(scheme, bearerScheme) || tokenStr == "" {
		return user.User{}, errMissingToken
	}

	userID, err := a.tokens.Verify(tokenStr)
	switch err {
	case nil:
	case token.ErrExpired:
		return user.User{}, errExpiredToken
	default:
		return user.User{}, errInvalidToken
	}

	usr, err := a.users.GetByID(ctx.Request().Context(), userID)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnknownUser
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, user.ErrAccountDeactivated
	}
	return usr, nil
}

// required rejects requests without a valid token of an active user.
func (a *authenticator) required() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := a.subject(ctx)
			if err != nil {
				return err
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// optional treats any authentication failure as an anonymous request.
func (a *authenticator) optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if usr, err := a.subject(ctx); err == nil {
				ctx.Set(contextUserKey, usr)
			}
			return next(ctx)
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := contextUser(ctx); ok {
		return usr, nil
	}
	return user.User{}, errUnauthenticated
}

type authApi struct {
	svc      *user.Service
	tokens   *token.Issuer
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, deps *Deps) {
	api := authApi{
		svc:      deps.UserSvc,
		tokens:   deps.Tokens,
		validate: deps.Validate,
	}

	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	tokenStr, err := api.tokens.Issue(usr.ID)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}

	return ctx.JSON(http.StatusCreated, AuthResponse{Message: "User registered successfully", User: usr, Token: tokenStr})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	tokenStr, err := api.tokens.Issue(usr.ID)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}

	return ctx.JSON(http.StatusOK, AuthResponse{Message: "Login successful", User: usr, Token: tokenStr})
}

// logout has no server-side effect: tokens stay valid until they expire.
func (api *authApi) logout(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Logout successful"})
}
