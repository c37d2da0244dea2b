package user_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	"github.com/oasis-elearning/oasis/testutil"
)

func mockNow(t *testing.T, now time.Time) {
	orig := *user.NowFunc
	*user.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { *user.NowFunc = orig })
}

func TestNewUser_Validate(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken@oasis.test", user.RoleEmployee, "Sales")

	fsys := fstest.MapFS{"common.txt": {Data: []byte("Passw0rd!\n\nletmein\n")}}
	user.LoadCommonPasswords(fsys, "common.txt", env.Logger)
	t.Cleanup(func() { user.LoadCommonPasswords(fstest.MapFS{"empty.txt": {}}, "empty.txt", env.Logger) })

	valid := func() user.NewUser {
		return user.NewUser{
			FirstName:  "  Ada ",
			LastName:   "Lovelace",
			Email:      " ADA@oasis.test",
			Password:   testutil.Password,
			Department: "Engineering",
		}
	}

	tests := []struct {
		name      string
		mutate    func(nu *user.NewUser)
		wantField string
		wantMsg   string
	}{
		{name: "valid"},
		{name: "missing first name", mutate: func(nu *user.NewUser) { nu.FirstName = "  " }, wantField: "first_name"},
		{name: "invalid email", mutate: func(nu *user.NewUser) { nu.Email = "ada" }, wantField: "email"},
		{name: "missing department", mutate: func(nu *user.NewUser) { nu.Department = "" }, wantField: "department"},
		{name: "too short", mutate: func(nu *user.NewUser) { nu.Password = "Ab1!" }, wantField: "password", wantMsg: "password must contain at least 8 characters"},
		{name: "whitespace", mutate: func(nu *user.NewUser) { nu.Password = "Sup3r Secr3t!" }, wantField: "password", wantMsg: "password must not contain whitespace"},
		{name: "all numeric", mutate: func(nu *user.NewUser) { nu.Password = "1234567890" }, wantField: "password", wantMsg: "password cannot be entirely numeric"},
		{name: "not complex", mutate: func(nu *user.NewUser) { nu.Password = "supersecret1" }, wantField: "password"},
		{name: "similar to email", mutate: func(nu *user.NewUser) { nu.Password = "Ada@oasis.t3st" }, wantField: "password", wantMsg: "password cannot be similar to user attributes"},
		{name: "common", mutate: func(nu *user.NewUser) { nu.Password = "PASSw0rd!" }, wantField: "password", wantMsg: "password is too common"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			if tt.mutate != nil {
				tt.mutate(&nu)
			}
			err := nu.Validate(env.Validate, env.UserSvc)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "Ada", nu.FirstName)
				assert.Equal(t, "ada@oasis.test", nu.Email)
				return
			}

			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.wantField, verrs[0].Field())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, verrs[0].Translate(env.Translator))
			}
		})
	}

	t.Run("email taken", func(t *testing.T) {
		nu := valid()
		nu.Email = "Taken@Oasis.test"
		err := nu.Validate(env.Validate, env.UserSvc)
		assert.True(t, core.IsConflict(err))
		assert.EqualError(t, err, user.ErrEmailExists.Error())
	})
}

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	nu := user.NewUser{FirstName: "Ada", LastName: "Lovelace", Email: "ada@oasis.test", Password: testutil.Password, Department: "Engineering"}

	usr, err := env.UserSvc.Register(ctx, nu)
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, user.RoleEmployee, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(testutil.Password))
	assert.Nil(t, usr.LastLogin)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "welcome", sent[0].Template)

	// the storage layer rejects a duplicate that got past validation
	_, err = env.UserSvc.Register(ctx, nu)
	assert.True(t, core.IsConflict(err))
	_, total, err := env.UserSvc.Query(ctx, user.QueryFilter{}, nil, core.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone@oasis.test", user.RoleEmployee, "Sales", false)

	_, err := env.UserSvc.Authenticate(ctx, "nobody@oasis.test", testutil.Password)
	assert.Equal(t, user.ErrInvalidCredentials, err)
	_, err = env.UserSvc.Authenticate(ctx, usr.Email, "wrong")
	assert.Equal(t, user.ErrInvalidCredentials, err)
	_, err = env.UserSvc.Authenticate(ctx, "gone@oasis.test", "wrong")
	assert.Equal(t, user.ErrInvalidCredentials, err, "a wrong password does not reveal the account state")
	_, err = env.UserSvc.Authenticate(ctx, "gone@oasis.test", testutil.Password)
	assert.Equal(t, user.ErrAccountDeactivated, err)

	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	logins := []struct {
		at          time.Time
		wantCurrent int
		wantLongest int
	}{
		{at: day, wantCurrent: 1, wantLongest: 1},
		{at: day.Add(8 * time.Hour), wantCurrent: 1, wantLongest: 1},
		{at: day.AddDate(0, 0, 1), wantCurrent: 2, wantLongest: 2},
		{at: day.AddDate(0, 0, 2), wantCurrent: 3, wantLongest: 3},
		{at: day.AddDate(0, 0, 5), wantCurrent: 1, wantLongest: 3},
	}
	for _, l := range logins {
		mockNow(t, l.at)
		got, err := env.UserSvc.Authenticate(ctx, " BOB@oasis.test ", testutil.Password)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.Equal(t, l.at, *got.LastLogin)
		assert.Equal(t, l.wantCurrent, got.Stats.Current, l.at)
		assert.Equal(t, l.wantLongest, got.Stats.Longest, l.at)
	}
}

func TestService_ChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	newPwd := "An0ther-Secret"

	cp := user.ChangePassword{CurrentPassword: "wrong", NewPassword: newPwd}
	require.NoError(t, cp.Validate(usr, env.Validate))
	err := env.UserSvc.ChangePassword(ctx, usr, cp)
	require.True(t, core.IsValidation(err))
	assert.EqualError(t, err, "current password is incorrect")

	stored, err := env.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.PasswordHash, stored.PasswordHash)

	cp = user.ChangePassword{CurrentPassword: testutil.Password, NewPassword: "bob@oasis.test1A"}
	var verrs validator.ValidationErrors
	require.ErrorAs(t, cp.Validate(usr, env.Validate), &verrs)
	assert.Equal(t, "new_password", verrs[0].Field())

	cp = user.ChangePassword{CurrentPassword: testutil.Password, NewPassword: newPwd}
	require.NoError(t, cp.Validate(usr, env.Validate))
	require.NoError(t, env.UserSvc.ChangePassword(ctx, usr, cp))

	stored, err = env.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Error(t, stored.CheckPassword(testutil.Password))
	assert.NoError(t, stored.CheckPassword(newPwd))
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	testutil.CreateUser(t, env.UserRepo, "Ann", "ann@oasis.test", user.RoleEmployee, "Sales")

	uu := user.UpdateUser{Email: "ANN@oasis.test"}
	err := uu.Validate(usr, env.Validate, env.UserSvc)
	assert.True(t, core.IsConflict(err))

	uu = user.UpdateUser{Email: "BOB@oasis.test", Role: "owner"}
	var verrs validator.ValidationErrors
	require.ErrorAs(t, uu.Validate(usr, env.Validate, env.UserSvc), &verrs)
	assert.Equal(t, "role", verrs[0].Field())
	assert.Equal(t, "invalid role: must be one of employee, manager, admin", verrs[0].Translate(env.Translator))

	inactive := false
	uu = user.UpdateUser{Role: user.RoleManager, Position: " Lead ", IsActive: &inactive}
	require.NoError(t, uu.Validate(usr, env.Validate, env.UserSvc))
	got, err := env.UserSvc.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.Equal(t, user.RoleManager, got.Role)
	assert.Equal(t, "Lead", got.Position)
	assert.Equal(t, "bob@oasis.test", got.Email)
	assert.Equal(t, "Sales", got.Department)
	assert.False(t, got.IsActive)
	assert.Equal(t, usr.CreatedAt, got.CreatedAt)

	// omitted is_active keeps the current state
	uu = user.UpdateUser{}
	require.NoError(t, uu.Validate(got, env.Validate, env.UserSvc))
	got, err = env.UserSvc.Update(ctx, got, uu)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	testutil.CreateUser(t, env.UserRepo, "Ann", "ann@oasis.test", user.RoleManager, "Sales", false)
	testutil.CreateUser(t, env.UserRepo, "Cid", "cid@oasis.test", user.RoleEmployee, "Engineering")

	tests := []struct {
		name      string
		filter    user.QueryFilter
		ordering  []core.DBOrdering
		wantNames []string
	}{
		{name: "all by first name", ordering: []core.DBOrdering{{Field: "first_name", Ascending: true}}, wantNames: []string{"Ann", "Bob", "Cid"}},
		{name: "department, case insensitive", filter: user.QueryFilter{Department: " sales "}, ordering: []core.DBOrdering{{Field: "first_name"}}, wantNames: []string{"Bob", "Ann"}},
		{name: "role", filter: user.QueryFilter{Role: "MANAGER"}, wantNames: []string{"Ann"}},
		{name: "active", filter: user.QueryFilter{Status: "active"}, ordering: []core.DBOrdering{{Field: "email", Ascending: true}}, wantNames: []string{"Bob", "Cid"}},
		{name: "unknown status is ignored", filter: user.QueryFilter{Status: "sleeping"}, ordering: []core.DBOrdering{{Field: "email", Ascending: true}}, wantNames: []string{"Ann", "Bob", "Cid"}},
		{name: "search", filter: user.QueryFilter{Search: "CID@"}, wantNames: []string{"Cid"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			users, total, err := env.UserSvc.Query(ctx, tt.filter, tt.ordering, core.NewPage(1, 10))
			require.NoError(t, err)
			names := make([]string, 0, len(users))
			for _, usr := range users {
				names = append(names, usr.FirstName)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, len(tt.wantNames), total)
		})
	}
}
