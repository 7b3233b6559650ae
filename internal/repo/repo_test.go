package repo

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyassistant/server/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		database.Close()
	})
	return database, mock
}

func TestUserRepo_CreateMapsUniqueViolation(t *testing.T) {
	database, mock := newMock(t)
	phone := "+15550001111"

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_phone_key"})
	_, err := NewUserRepo(database).Create(context.Background(), model.NewUser{Phone: &phone, PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"})
	_, err = NewUserRepo(database).Create(context.Background(), model.NewUser{Phone: &phone, PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepo_GetByEmailNotFound(t *testing.T) {
	database, mock := newMock(t)

	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := NewUserRepo(database).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_FindIdentity(t *testing.T) {
	database, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID, familyID, memberID := uuid.New(), uuid.New(), uuid.New()
	cols := []string{"id", "phone", "email", "family_id", "name", "member_id"}

	mock.ExpectQuery("FROM sessions s").
		WithArgs("digest-a", now).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(userID.String(), "+15550001111", nil, nil, nil, nil))
	id, err := NewSessionRepo(database).FindIdentity(context.Background(), "digest-a", now)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	_, ok := id.Scope()
	assert.False(t, ok)

	mock.ExpectQuery("FROM sessions s").
		WithArgs("digest-b", now).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(userID.String(), nil, "a@b.co", familyID.String(), "Smiths", memberID.String()))
	id, err = NewSessionRepo(database).FindIdentity(context.Background(), "digest-b", now)
	require.NoError(t, err)
	scope, ok := id.Scope()
	require.True(t, ok)
	assert.Equal(t, familyID, scope.FamilyID)
	assert.Equal(t, memberID, scope.MemberID)
	assert.Equal(t, "Smiths", *id.FamilyName)

	mock.ExpectQuery("FROM sessions s").
		WithArgs("digest-c", now).
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = NewSessionRepo(database).FindIdentity(context.Background(), "digest-c", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_ExpireAllForUser(t *testing.T) {
	database, mock := newMock(t)
	now := time.Now()
	userID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET expires_at = $2 WHERE user_id = $1 AND expires_at > $2")).
		WithArgs(userID.String(), now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := NewSessionRepo(database).ExpireAllForUser(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestResetRepo_MarkUsedIsSingleUse(t *testing.T) {
	database, mock := newMock(t)
	now := time.Now()
	id := uuid.New()
	query := regexp.QuoteMeta("UPDATE password_resets SET used_at = $2 WHERE id = $1 AND used_at IS NULL")

	mock.ExpectExec(query).WithArgs(id.String(), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(id.String(), now).WillReturnResult(sqlmock.NewResult(0, 0))

	r := NewResetRepo(database)
	require.NoError(t, r.MarkUsed(context.Background(), id, now))
	assert.ErrorIs(t, r.MarkUsed(context.Background(), id, now), ErrNotFound)
}

func TestResetRepo_LockUserUsesAdvisoryLock(t *testing.T) {
	database, mock := newMock(t)
	userID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1, hashtext($2))")).
		WithArgs(resetLockClass, userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewResetRepo(database).LockUser(context.Background(), userID))
}

var memberCols = []string{"id", "family_id", "user_id", "name", "role", "relationship", "avatar", "avatar_type",
	"photo_url", "points", "level", "workload", "age", "created_at", "updated_at"}

func TestMemberRepo_UpdateBuildsWhitelistedSet(t *testing.T) {
	database, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	familyID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE family_members SET name = $1, age = $2, updated_at = $3 WHERE id = $4 AND family_id = $5")).
		WithArgs("Anna", nil, now, id.String(), familyID.String()).
		WillReturnRows(sqlmock.NewRows(memberCols).AddRow(
			id.String(), familyID.String(), nil, "Anna", "Family member", nil, "👤", "emoji",
			nil, 0, 1, 0, nil, now, now))

	patch := model.MemberPatch{Name: model.Some("Anna"), Age: model.Null[int]()}
	m, err := NewMemberRepo(database).Update(context.Background(), familyID, id, patch, now)
	require.NoError(t, err)
	assert.Equal(t, "Anna", m.Name)
	assert.Nil(t, m.Age)
	assert.Nil(t, m.UserID)
}

func TestMemberRepo_EmptyPatchReadsBack(t *testing.T) {
	database, mock := newMock(t)
	familyID, id := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM family_members WHERE id = \\$1 AND family_id = \\$2").
		WithArgs(id.String(), familyID.String()).
		WillReturnRows(sqlmock.NewRows(memberCols))
	_, err := NewMemberRepo(database).Update(context.Background(), familyID, id, model.MemberPatch{}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemberRepo_DetachMissing(t *testing.T) {
	database, mock := newMock(t)

	mock.ExpectExec("UPDATE family_members SET family_id = NULL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := NewMemberRepo(database).Detach(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskRepo_ListFiltersByCompletion(t *testing.T) {
	database, mock := newMock(t)
	familyID := uuid.New()
	done := true
	now := time.Now()
	cols := []string{"id", "family_id", "title", "description", "assignee_id", "name", "completed", "points",
		"priority", "category", "reminder_time", "is_recurring", "recurring_frequency", "recurring_interval",
		"recurring_days_of_week", "recurring_end_date", "next_occurrence", "cooking_day", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.family_id = $1 AND t.completed = $2")).
		WithArgs(familyID.String(), true).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			uuid.NewString(), familyID.String(), "Dishes", nil, nil, nil, true, 10,
			"medium", nil, nil, true, "weekly", 1,
			"{1,3}", nil, now, nil, now, now))

	tasks, err := NewTaskRepo(database).List(context.Background(), familyID, &done)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Dishes", tasks[0].Title)
	require.NotNil(t, tasks[0].RecurringFrequency)
	assert.Equal(t, model.FrequencyWeekly, *tasks[0].RecurringFrequency)
	assert.Equal(t, []int{1, 3}, tasks[0].RecurringDaysOfWeek)
}

func TestSetBuilder(t *testing.T) {
	var b setBuilder
	addOptional(&b, "title", model.Some("x"))
	addOptional(&b, "category", model.Optional[string]{})
	addOptional(&b, "description", model.Null[string]())
	where := b.arg("id")

	assert.Equal(t, "title = $1, description = $2", b.clause())
	assert.Equal(t, "$3", where)
	assert.Equal(t, []any{"x", nil, "id"}, b.args)
}
