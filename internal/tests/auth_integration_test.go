package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/auth"
	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

// TestAuthIntegration exercises the auth service and repositories against a real Postgres.
// Deterministic: Truncate before each section.
func TestAuthIntegration(t *testing.T) {
	ts := newTestServer(t, serverOptions{devMode: true})
	ctx := context.Background()

	t.Run("A_RegisterCreatesHousehold", func(t *testing.T) {
		ts.Truncate(t)
		sess, err := ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret1"})
		require.NoError(t, err)

		scope, ok := sess.Identity.Scope()
		require.True(t, ok)
		members, err := ts.Store.Repos().Members.List(ctx, scope.FamilyID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "Owner", members[0].Role)
		assert.Equal(t, sess.Identity.UserID, *members[0].UserID)

		identity, ok, err := ts.Auth.Verify(ctx, sess.Token)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, scope.FamilyID, *identity.FamilyID)
	})

	t.Run("B_DuplicatePhoneMappedFromUniqueViolation", func(t *testing.T) {
		ts.Truncate(t)
		_, err := ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret1"})
		require.NoError(t, err)

		_, err = ts.Store.Repos().Users.Create(ctx, model.NewUser{Phone: strPtr(testPhone), PasswordHash: "x"})
		assert.ErrorIs(t, err, repo.ErrDuplicatePhone)

		_, err = ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret2"})
		assert.ErrorIs(t, err, apperr.ErrDuplicateIdentifier)
		assert.Equal(t, 1, countRows(t, ts, "users"))
	})

	t.Run("C_ConcurrentRegistrationSamePhone", func(t *testing.T) {
		ts.Truncate(t)
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret1"})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperr.ErrDuplicateIdentifier)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, countRows(t, ts, "users"))
		assert.Equal(t, 1, countRows(t, ts, "families"), "losers leave no orphaned household")
		assert.Equal(t, 1, countRows(t, ts, "sessions"))
	})

	t.Run("D_ConcurrentForgotPasswordKeepsOneActiveRequest", func(t *testing.T) {
		ts.Truncate(t)
		_, err := ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret1"})
		require.NoError(t, err)

		const n = 6
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ts.Auth.ForgotPassword(ctx, testPhone)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var active int
		require.NoError(t, ts.DB.QueryRowContext(ctx, "SELECT count(*) FROM password_resets WHERE used_at IS NULL").Scan(&active))
		assert.Equal(t, 1, active)
		assert.Equal(t, 1, countRows(t, ts, "password_resets"), "superseded requests are deleted")
	})

	t.Run("E_ResetIsSingleUseAndLogsOutEverywhere", func(t *testing.T) {
		ts.Truncate(t)
		reg, err := ts.Auth.Register(ctx, auth.RegisterInput{Phone: testPhone, Password: "secret1"})
		require.NoError(t, err)
		login, err := ts.Auth.Login(ctx, testPhone, "secret1")
		require.NoError(t, err)

		req, err := ts.Auth.ForgotPassword(ctx, testPhone)
		require.NoError(t, err)
		resetToken, err := ts.Auth.VerifyResetCode(ctx, testPhone, req.Code)
		require.NoError(t, err)
		require.NoError(t, ts.Auth.ResetPassword(ctx, resetToken, "newsecret"))

		err = ts.Auth.ResetPassword(ctx, resetToken, "another1")
		assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

		for _, token := range []string{reg.Token, login.Token} {
			_, ok, err := ts.Auth.Verify(ctx, token)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		_, err = ts.Auth.Login(ctx, testPhone, "secret1")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
		_, err = ts.Auth.Login(ctx, testPhone, "newsecret")
		assert.NoError(t, err)
	})

	t.Run("F_ShortPasswordHasNoSideEffects", func(t *testing.T) {
		ts.Truncate(t)
		_, err := ts.Auth.Register(ctx, auth.RegisterInput{Email: "short@example.com", Password: "12345"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		for _, table := range []string{"users", "sessions", "families", "family_members"} {
			assert.Equal(t, 0, countRows(t, ts, table), table)
		}
	})

	t.Run("G_TaskRoundTripThroughPostgres", func(t *testing.T) {
		ts.Truncate(t)
		sess, err := ts.Auth.Register(ctx, auth.RegisterInput{Email: "tasks@example.com", Password: "secret1"})
		require.NoError(t, err)
		scope, _ := sess.Identity.Scope()

		weekly := model.FrequencyWeekly
		created, err := ts.Store.Repos().Tasks.Create(ctx, model.Task{
			FamilyID:            scope.FamilyID,
			Title:               "Laundry",
			Points:              10,
			Priority:            "medium",
			AssigneeID:          &scope.MemberID,
			IsRecurring:         true,
			RecurringFrequency:  &weekly,
			RecurringDaysOfWeek: []int{1, 5},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 5}, created.RecurringDaysOfWeek)
		require.NotNil(t, created.AssigneeName)
		assert.Equal(t, "tasks", *created.AssigneeName)

		done := true
		_, err = ts.Store.Repos().Tasks.Update(ctx, scope.FamilyID, created.ID, model.TaskPatch{Completed: model.Some(done)}, created.CreatedAt)
		require.NoError(t, err)
		list, err := ts.Store.Repos().Tasks.List(ctx, scope.FamilyID, &done)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("H_StoreRollsBackFailedTransaction", func(t *testing.T) {
		ts.Truncate(t)
		boom := errors.New("boom")
		err := ts.Store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
			if _, err := r.Families.Create(ctx, "Doomed"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countRows(t, ts, "families"))
	})
}

func countRows(t *testing.T, ts *testServer, table string) int {
	t.Helper()
	var n int
	require.NoError(t, ts.DB.QueryRow("SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func strPtr(s string) *string { return &s }
