package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/model"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.New(apperr.ErrDuplicateIdentifier, "dup"), http.StatusBadRequest},
		{apperr.New(apperr.ErrInvalidOrExpiredCode, "code"), http.StatusBadRequest},
		{apperr.New(apperr.ErrInvalidOrExpiredToken, "token"), http.StatusBadRequest},
		{apperr.New(apperr.ErrInvalidCredential, "cred"), http.StatusUnauthorized},
		{apperr.New(apperr.ErrUnauthenticated, "auth"), http.StatusUnauthorized},
		{apperr.New(apperr.ErrNotInFamily, "family"), http.StatusForbidden},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Storage("op", errors.New("pq: broken")), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRespondWithAppError_HidesStorageCause(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithAppError(rec, apperr.Storage("insert user", errors.New(`pq: relation "users" does not exist`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var env memberEnvelope
	var patch model.MemberPatch

	req := httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(`{"action":"update","id":"x","age":null,"name":"Ann"}`))
	require.NoError(t, decodeJSON(req, &env, &patch))
	assert.Equal(t, "update", env.Action)
	assert.True(t, patch.Age.Set)
	assert.True(t, patch.Age.Null)
	assert.Equal(t, "Ann", patch.Name.Value)
	assert.False(t, patch.Role.Set)

	req = httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(""))
	require.NoError(t, decodeJSON(req, &patch), "empty body reads as an empty object")

	req = httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(`{"points":"many"}`))
	err := decodeJSON(req, &model.MemberPatch{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(`{"name":`))
	err = decodeJSON(req, &patch)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "syntax error")

	req = httptest.NewRequest(http.MethodPost, "/members", strings.NewReader(strings.Repeat(" ", maxBodyBytes+1)))
	assert.ErrorIs(t, decodeJSON(req, &patch), apperr.ErrValidation)
}

func TestParseID(t *testing.T) {
	_, err := parseID("", "task id")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = parseID("not-a-uuid", "task id")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	id, err := parseID(" 7f0c7b52-8d4f-4a43-9e0a-1f3a0d4a9b11 ", "task id")
	require.NoError(t, err)
	assert.Equal(t, "7f0c7b52-8d4f-4a43-9e0a-1f3a0d4a9b11", id.String())
}
