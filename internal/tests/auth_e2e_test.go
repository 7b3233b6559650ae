package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "+79991234567"

// sessionResponse matches register and login responses
type sessionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    struct {
		ID         string `json:"id"`
		Phone      string `json:"phone"`
		FamilyID   string `json:"family_id"`
		FamilyName string `json:"family_name"`
		MemberID   string `json:"member_id"`
	} `json:"user"`
}

// forgotPasswordResponse matches forgot_password response
type forgotPasswordResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

// resetTokenResponse matches verify_reset_code response
type resetTokenResponse struct {
	ResetToken string `json:"reset_token"`
}

// errorResponse matches error JSON body
type errorResponse struct {
	Error string `json:"error"`
}

type client struct {
	t       *testing.T
	http    *http.Client
	baseURL string
}

func newClient(t *testing.T, ts *testServer) *client {
	return &client{t: t, http: ts.Server.Client(), baseURL: ts.BaseURL()}
}

// call sends a request and decodes a JSON body into out when out is non-nil
func (c *client) call(method, path, token string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw := readBody(resp)
	if out != nil && raw != "" {
		require.NoError(c.t, json.Unmarshal([]byte(raw), out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (c *client) login(login, password string) (int, sessionResponse) {
	var res sessionResponse
	code := c.call(http.MethodPost, "/auth?action=login", "", map[string]string{"login": login, "password": password}, &res)
	return code, res
}

func (c *client) verify(token string) int {
	return c.call(http.MethodGet, "/auth?action=verify", token, nil, nil)
}

// TestAuthE2E runs the register/login/logout and password-reset flows over HTTP against Postgres.
// Uses httptest.NewServer (no real port). Deterministic: Truncate before each section.
func TestAuthE2E(t *testing.T) {
	ts := newTestServer(t, serverOptions{devMode: true})
	c := newClient(t, ts)

	t.Run("A_Health", func(t *testing.T) {
		var body map[string]bool
		assert.Equal(t, http.StatusOK, c.call(http.MethodGet, "/health", "", nil, &body))
		assert.True(t, body["ok"])
		assert.Equal(t, http.StatusOK, c.call(http.MethodGet, "/ready", "", nil, nil))
	})

	t.Run("B_RegisterLoginLogout", func(t *testing.T) {
		ts.Truncate(t)

		var reg sessionResponse
		code := c.call(http.MethodPost, "/auth?action=register", "", map[string]string{"phone": testPhone, "password": "secret1"}, &reg)
		require.Equal(t, http.StatusCreated, code)
		require.NotEmpty(t, reg.Token)
		assert.Equal(t, "Family "+testPhone, reg.User.FamilyName)
		assert.NotEmpty(t, reg.User.FamilyID)

		code, login := c.login(testPhone, "secret1")
		require.Equal(t, http.StatusOK, code)
		assert.NotEqual(t, reg.Token, login.Token)
		assert.Equal(t, reg.User.ID, login.User.ID)

		assert.Equal(t, http.StatusOK, c.verify(reg.Token))
		assert.Equal(t, http.StatusOK, c.verify(login.Token))

		assert.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=logout", reg.Token, nil, nil))
		assert.Equal(t, http.StatusUnauthorized, c.verify(reg.Token))
		assert.Equal(t, http.StatusOK, c.verify(login.Token))

		assert.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=logout", reg.Token, nil, nil), "logout is idempotent")
	})

	t.Run("C_PasswordReset", func(t *testing.T) {
		ts.Truncate(t)

		var reg sessionResponse
		require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/auth?action=register", "", map[string]string{"phone": testPhone, "password": "secret1"}, &reg))

		var forgot forgotPasswordResponse
		require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=forgot_password", "", map[string]string{"phone": testPhone}, &forgot))
		require.Regexp(t, `^\d{6}$`, forgot.Code)

		wrong := "000000"
		if forgot.Code == wrong {
			wrong = "111111"
		}
		var errRes errorResponse
		assert.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/auth?action=verify_reset_code", "", map[string]string{"phone": testPhone, "code": wrong}, &errRes))
		assert.NotEmpty(t, errRes.Error)

		var verified resetTokenResponse
		require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=verify_reset_code", "", map[string]string{"phone": testPhone, "code": forgot.Code}, &verified))
		require.NotEmpty(t, verified.ResetToken)

		require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=reset_password", "", map[string]string{"reset_token": verified.ResetToken, "new_password": "newsecret"}, nil))

		code, _ := c.login(testPhone, "secret1")
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = c.login(testPhone, "newsecret")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, http.StatusUnauthorized, c.verify(reg.Token))
	})

	t.Run("D_FamilyScopedResources", func(t *testing.T) {
		ts.Truncate(t)

		var reg sessionResponse
		require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/auth?action=register", "", map[string]string{"email": "parent@example.com", "password": "secret1"}, &reg))

		var added struct {
			Member struct {
				ID string `json:"id"`
			} `json:"member"`
		}
		require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/members", reg.Token, map[string]any{"name": "Kid", "age": 9}, &added))

		var created struct {
			Task struct {
				ID           string `json:"id"`
				AssigneeName string `json:"assignee_name"`
			} `json:"task"`
		}
		require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/tasks", reg.Token, map[string]any{"title": "Homework", "assignee_id": added.Member.ID}, &created))
		assert.Equal(t, "Kid", created.Task.AssigneeName)

		assert.Equal(t, http.StatusOK, c.call(http.MethodDelete, "/tasks?id="+created.Task.ID, reg.Token, nil, nil))
		var list struct {
			Tasks []map[string]any `json:"tasks"`
		}
		require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/tasks?completed=true", reg.Token, nil, &list))
		assert.Len(t, list.Tasks, 1)

		assert.Equal(t, http.StatusUnauthorized, c.call(http.MethodGet, "/tasks", "", nil, nil))
	})
}

func TestAuthE2E_ProductionModeHidesCode(t *testing.T) {
	ts := newTestServer(t, serverOptions{devMode: false})
	c := newClient(t, ts)
	ts.Truncate(t)

	require.Equal(t, http.StatusCreated, c.call(http.MethodPost, "/auth?action=register", "", map[string]string{"phone": testPhone, "password": "secret1"}, nil))
	var forgot forgotPasswordResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/auth?action=forgot_password", "", map[string]string{"phone": testPhone}, &forgot))
	assert.True(t, forgot.Success)
	assert.Empty(t, forgot.Code, "code must not be exposed outside dev mode")
}

func TestAuthE2E_RateLimit(t *testing.T) {
	ts := newTestServer(t, serverOptions{authLimit: 3})
	c := newClient(t, ts)
	ts.Truncate(t)

	var last int
	for range 4 {
		last, _ = c.login(testPhone, "whatever1")
		if last == http.StatusTooManyRequests {
			break
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last, "4th login must return 429")
}

// readBody reads and returns the response body (consumes it)
func readBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
