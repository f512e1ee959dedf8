package session_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/internal/gateway"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/server/servertest"
	"github.com/shelfwise/shelfwise/internal/session"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

type client struct {
	manager *session.Manager
	store   *store.Store
}

func newClient(t *testing.T, gw *servertest.Gateway) *client {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gwClient, err := gateway.New(&gw.Config.Gateway, logger)
	require.NoError(t, err)

	st := store.New()
	return &client{
		manager: session.NewManager(gwClient, st, logger),
		store:   st,
	}
}

func (c *client) auth() store.AuthState {
	return c.store.Snapshot().Auth
}

func registerAndVerify(t *testing.T, gw *servertest.Gateway, c *client, username, email, password string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, c.manager.Register(ctx, username, email, password))
	require.Equal(t, store.PhasePendingVerification, c.auth().Phase())

	code := gw.Mailer.LastOTP(email)
	require.NotEmpty(t, code, "verification code should have been delivered")
	require.NoError(t, c.manager.VerifyOTP(ctx, email, code))
}

func TestRegisterVerifyLoginLifecycle(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")

	auth := c.auth()
	assert.Equal(t, store.PhaseAuthenticated, auth.Phase())
	require.NotNil(t, auth.User)
	assert.Equal(t, "alice@x.com", auth.User.Email)
	assert.True(t, auth.User.Verified)

	// A fresh validation is idempotent and overwrites the snapshot wholesale.
	require.NoError(t, c.manager.ValidateToken(ctx))
	assert.Equal(t, store.PhaseAuthenticated, c.auth().Phase())

	require.NoError(t, c.manager.Logout(ctx))
	assert.Equal(t, store.PhaseAnonymous, c.auth().Phase())
	assert.Nil(t, c.auth().User)

	// Credential is dead server-side, not just locally.
	err := c.manager.ValidateToken(ctx)
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))
	assert.Equal(t, store.PhaseAnonymous, c.auth().Phase())

	// Login again with the same credentials.
	require.NoError(t, c.manager.Login(ctx, "alice@x.com", "S3cretPass!"))
	auth = c.auth()
	assert.Equal(t, store.PhaseAuthenticated, auth.Phase())
	require.NotNil(t, auth.User)
	assert.Equal(t, "alice", auth.User.Username)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Register(ctx, "alice", "alice@x.com", "S3cretPass!"))

	c2 := newClient(t, gw)
	err := c2.manager.Register(ctx, "alice2", "alice@x.com", "OtherPass1!")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.False(t, c2.auth().Pending)
	require.NotNil(t, c2.auth().Err)
}

func TestVerifyWrongCodeKeepsChallengeAlive(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Register(ctx, "alice", "alice@x.com", "S3cretPass!"))

	err := c.manager.VerifyOTP(ctx, "alice@x.com", "000000")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))
	assert.False(t, c.auth().Pending)

	// The real code still works after a wrong guess.
	code := gw.Mailer.LastOTP("alice@x.com")
	require.NoError(t, c.manager.VerifyOTP(ctx, "alice@x.com", code))
	assert.Equal(t, store.PhaseAuthenticated, c.auth().Phase())
}

func TestVerifyCodeExpires(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Register(ctx, "alice", "alice@x.com", "S3cretPass!"))
	gw.Redis.FastForward(6 * time.Minute)

	code := gw.Mailer.LastOTP("alice@x.com")
	err := c.manager.VerifyOTP(ctx, "alice@x.com", code)
	assert.Equal(t, apperr.CodeExpired, apperr.CodeOf(err))
}

func TestLoginRejectsBadCredentialsAndUnverified(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	err := c.manager.Login(ctx, "nobody@x.com", "whatever1!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))

	require.NoError(t, c.manager.Register(ctx, "alice", "alice@x.com", "S3cretPass!"))
	err = c.manager.Login(ctx, "alice@x.com", "S3cretPass!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err), "unverified accounts cannot log in")

	err = c.manager.Login(ctx, "alice@x.com", "WrongPass1!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))
	assert.Equal(t, store.PhaseAnonymous, c.auth().Phase())
}

func TestLoginValidationFailureWithoutFields(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)

	err := c.manager.Login(context.Background(), "", "")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.False(t, c.auth().Pending, "local validation failure must still resolve pending")
}

func TestForgotAndResetPassword(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")
	require.NoError(t, c.manager.Logout(ctx))

	require.NoError(t, c.manager.ForgotPassword(ctx, "alice@x.com"))
	token := gw.Mailer.LastResetToken("alice@x.com")
	require.NotEmpty(t, token)

	require.NoError(t, c.manager.ResetPassword(ctx, token, "NewPass123!", "NewPass123!"))
	assert.NotEmpty(t, c.auth().Notice)

	// Old password is dead, new one works.
	err := c.manager.Login(ctx, "alice@x.com", "S3cretPass!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))
	require.NoError(t, c.manager.Login(ctx, "alice@x.com", "NewPass123!"))
}

func TestResetTokenIsSingleUse(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")
	require.NoError(t, c.manager.ForgotPassword(ctx, "alice@x.com"))
	token := gw.Mailer.LastResetToken("alice@x.com")

	require.NoError(t, c.manager.ResetPassword(ctx, token, "NewPass123!", "NewPass123!"))

	err := c.manager.ResetPassword(ctx, token, "ThirdPass12!", "ThirdPass12!")
	assert.Equal(t, apperr.CodeExpired, apperr.CodeOf(err))
}

func TestResetTokenExpiry(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")
	require.NoError(t, c.manager.ForgotPassword(ctx, "alice@x.com"))
	token := gw.Mailer.LastResetToken("alice@x.com")

	gw.Redis.FastForward(11 * time.Minute)

	err := c.manager.ResetPassword(ctx, token, "NewPass123!", "NewPass123!")
	assert.Equal(t, apperr.CodeExpired, apperr.CodeOf(err))
}

func TestResetPasswordMismatchFailsBeforeNetwork(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)

	err := c.manager.ResetPassword(context.Background(), "some-token", "NewPass123!", "Different1!")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.False(t, c.auth().Pending)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")

	require.NoError(t, c.manager.ForgotPassword(ctx, "alice@x.com"))
	knownNotice := c.auth().Notice

	require.NoError(t, c.manager.ForgotPassword(ctx, "ghost@x.com"))
	unknownNotice := c.auth().Notice

	assert.Equal(t, knownNotice, unknownNotice, "responses must not distinguish registered emails")
	assert.Empty(t, gw.Mailer.LastResetToken("ghost@x.com"))
}

func TestUpdatePassword(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")

	err := c.manager.UpdatePassword(ctx, "WrongOld1!", "NewPass123!", "NewPass123!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))

	require.NoError(t, c.manager.UpdatePassword(ctx, "S3cretPass!", "NewPass123!", "NewPass123!"))

	require.NoError(t, c.manager.Logout(ctx))
	require.NoError(t, c.manager.Login(ctx, "alice@x.com", "NewPass123!"))
}

func TestUpdatePasswordRequiresSession(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)

	err := c.manager.UpdatePassword(context.Background(), "old", "NewPass123!", "NewPass123!")
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))
}

func TestPendingLivenessObservedBySubscriber(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	var transitions []bool
	unsubscribe := c.store.Subscribe(func(snap store.Snapshot) {
		transitions = append(transitions, snap.Auth.Pending)
	})
	defer unsubscribe()

	require.NoError(t, c.manager.Register(ctx, "alice", "alice@x.com", "S3cretPass!"))
	_ = c.manager.Login(ctx, "alice@x.com", "bad") // fails: unverified

	require.NotEmpty(t, transitions)
	assert.False(t, transitions[len(transitions)-1], "last transition must resolve pending")

	// Every pending=true is eventually followed by pending=false.
	assert.False(t, transitions[len(transitions)-1])
	pendingSeen := 0
	for _, p := range transitions {
		if p {
			pendingSeen++
		}
	}
	assert.Equal(t, 2, pendingSeen, "one pending per operation")
}

func TestAdminSeedCanLogin(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Login(ctx, servertest.AdminEmail, servertest.AdminPassword))
	auth := c.auth()
	require.NotNil(t, auth.User)
	assert.Equal(t, models.RoleAdmin, auth.User.Role)
}

func TestAdminRegistersAdminAndListsUsers(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Login(ctx, servertest.AdminEmail, servertest.AdminPassword))

	require.NoError(t, c.manager.RegisterAdmin(ctx, "librarian", "librarian@x.com", "Libr4rian!"))
	users := c.store.Snapshot().Users
	require.NotNil(t, users.Admin)
	assert.Equal(t, models.RoleAdmin, users.Admin.Role)
	assert.True(t, users.Admin.Verified, "admins skip the verification challenge")

	require.NoError(t, c.manager.FetchAllUsers(ctx))
	assert.Len(t, c.store.Snapshot().Users.Users, 2)

	// The new admin can log in immediately.
	c2 := newClient(t, gw)
	require.NoError(t, c2.manager.Login(ctx, "librarian@x.com", "Libr4rian!"))
}

func TestNonAdminCannotListUsers(t *testing.T) {
	gw := servertest.Start(t)
	c := newClient(t, gw)
	ctx := context.Background()

	registerAndVerify(t, gw, c, "alice", "alice@x.com", "S3cretPass!")

	err := c.manager.FetchAllUsers(ctx)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	assert.False(t, c.store.Snapshot().Users.Pending)
}
