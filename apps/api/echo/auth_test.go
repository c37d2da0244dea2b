package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/oasis-elearning/oasis/apps/api/echo"
	"github.com/oasis-elearning/oasis/core/user"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	"github.com/oasis-elearning/oasis/testutil"
)

func Test_authApi_register(t *testing.T) {
	env, srv := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken@oasis.test", user.RoleEmployee, "Sales")

	newUser := func(email, pwd string) user.NewUser {
		return user.NewUser{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      email,
			Password:   pwd,
			Department: "Engineering",
			Position:   "Analyst",
		}
	}

	runHTTPTests(t, srv, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/auth/register",
			body: user.NewUser{Email: "ada@oasis.test"}, wantCode: http.StatusBadRequest, wantMsg: "invalid input",
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/auth/register",
			body: newUser("weak@oasis.test", "12345678"), wantCode: http.StatusBadRequest,
		},
		{
			name: "email taken (case insensitive)", method: http.MethodPost, path: "/api/auth/register",
			body: newUser("TAKEN@oasis.test", testutil.Password), wantCode: http.StatusBadRequest,
			wantMsg: user.ErrEmailExists.Error(),
		},
	})

	rec := do(t, srv, http.MethodPost, "/api/auth/register", "", newUser(" Ada@Oasis.test ", testutil.Password))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[echoapi.AuthResponse](t, rec)
	assert.Equal(t, "ada@oasis.test", resp.User.Email)
	assert.Equal(t, user.RoleEmployee, resp.User.Role)
	assert.True(t, resp.User.IsActive)
	assert.NotEmpty(t, resp.Token)

	userID, err := env.Tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "welcome", sent[0].Template)
	assert.Equal(t, "ada@oasis.test", sent[0].To[0].Address)
}

func Test_authApi_login(t *testing.T) {
	env, srv := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone@oasis.test", user.RoleEmployee, "Sales", false)

	login := func(email, pwd string) echoapi.LoginRequest {
		return echoapi.LoginRequest{Email: email, Password: pwd}
	}

	runHTTPTests(t, srv, []httpTest{
		{
			name: "unknown email", method: http.MethodPost, path: "/api/auth/login",
			body: login("nobody@oasis.test", testutil.Password), wantCode: http.StatusUnauthorized,
			wantMsg: user.ErrInvalidCredentials.Error(),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/auth/login",
			body: login("bob@oasis.test", "nope"), wantCode: http.StatusUnauthorized,
			wantMsg: user.ErrInvalidCredentials.Error(),
		},
		{
			name: "inactive account", method: http.MethodPost, path: "/api/auth/login",
			body: login("gone@oasis.test", testutil.Password), wantCode: http.StatusUnauthorized,
			wantMsg: user.ErrAccountDeactivated.Error(),
		},
		{name: "logout", method: http.MethodPost, path: "/api/auth/logout", wantCode: http.StatusOK},
	})

	rec := do(t, srv, http.MethodPost, "/api/auth/login", "", login("BOB@oasis.test", testutil.Password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[echoapi.AuthResponse](t, rec)
	assert.Equal(t, usr.ID, resp.User.ID)
	require.NotNil(t, resp.User.LastLogin)
	assert.Equal(t, 1, resp.User.Stats.Current)
	assert.Equal(t, 1, resp.User.Stats.Longest)

	// every login yields a distinct token
	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", login("bob@oasis.test", testutil.Password))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, resp.Token, decode[echoapi.AuthResponse](t, rec).Token)
}

func Test_authenticator(t *testing.T) {
	env, srv := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	inactive := testutil.CreateUser(t, env.UserRepo, "Gone", "gone@oasis.test", user.RoleEmployee, "Sales", false)

	validToken := env.Token(t, usr)

	env.Tokens.NowFunc = func() time.Time { return time.Now().Add(-2 * env.Conf.Server.JWTExpirationDelta) }
	expiredToken := env.Token(t, usr)
	env.Tokens.NowFunc = time.Now

	runHTTPTests(t, srv, []httpTest{
		{name: "no token", path: "/api/users/profile", wantCode: http.StatusUnauthorized, wantMsg: "access denied: no token provided"},
		{name: "malformed token", path: "/api/users/profile", token: "garbage", wantCode: http.StatusUnauthorized, wantMsg: "access denied: invalid token"},
		{
			name: "tampered token", path: "/api/users/profile", token: validToken[:len(validToken)-2] + "xx",
			wantCode: http.StatusUnauthorized, wantMsg: "access denied: invalid token",
		},
		{name: "expired token", path: "/api/users/profile", token: expiredToken, wantCode: http.StatusUnauthorized, wantMsg: "access denied: token expired"},
		{
			name: "inactive account", path: "/api/users/profile", token: env.Token(t, inactive),
			wantCode: http.StatusUnauthorized, wantMsg: user.ErrAccountDeactivated.Error(),
		},
		{name: "valid token", path: "/api/users/profile", token: validToken, wantCode: http.StatusOK},
	})

	// an unknown subject is rejected even with a valid signature
	unknownToken, err := env.Tokens.Issue(uuid.NewString())
	require.NoError(t, err)
	runHTTPTests(t, srv, []httpTest{
		{name: "unknown subject", path: "/api/users/profile", token: unknownToken, wantCode: http.StatusUnauthorized, wantMsg: "access denied: user not found"},
	})
}
