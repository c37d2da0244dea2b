package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	echoapi "github.com/oasis-elearning/oasis/apps/api/echo"
	"github.com/oasis-elearning/oasis/testutil"
)

type httpErr struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantMsg  string
}

func setup(t *testing.T) (*testutil.Env, *echoapi.Server) {
	env := testutil.NewEnv(t)
	srv := echoapi.NewServer(make(chan os.Signal, 1), &echoapi.Deps{
		Conf:        env.Conf,
		Logger:      env.Logger,
		Validate:    env.Validate,
		Translator:  env.Translator,
		Tokens:      env.Tokens,
		UserSvc:     env.UserSvc,
		CourseSvc:   env.CourseSvc,
		ProgressSvc: env.ProgressSvc,
	})
	return env, srv
}

func do(t *testing.T, srv *echoapi.Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func runHTTPTests(t *testing.T, srv *echoapi.Server, tests []httpTest) {
	t.Helper()

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := do(t, srv, method, tt.path, tt.token, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantMsg != "" {
				require.Equal(t, tt.wantMsg, decode[httpErr](t, rec).Message)
			}
		})
	}
}

func TestServer_home(t *testing.T) {
	env, srv := setup(t)

	rec := do(t, srv, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[map[string]string](t, rec)
	require.Equal(t, "Welcome to "+env.Conf.AppName+" API!", resp["message"])
}
