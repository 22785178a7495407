package account

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/requestcontext"
)

var admin = domain.ActorContext{ActorID: 50, Role: domain.RoleAdmin, ScopeID: 100}

func adminCtx() context.Context {
	return requestcontext.WithActor(context.Background(), admin)
}

func newTestService() *Service {
	return NewService(NewMemoryStore(), "PFLW", slog.Default())
}

func validInput() CreateInput {
	return CreateInput{
		Email:    "dana@example.com",
		Password: "correct-horse-battery",
		FullName: "Dana Reyes",
		Role:     domain.RoleUser,
	}
}

func TestCreateAccount(t *testing.T) {
	t.Run("creates with hashed password and identifier", func(t *testing.T) {
		svc := newTestService()

		created, err := svc.Create(adminCtx(), validInput())
		require.NoError(t, err)

		assert.NotZero(t, created.ID)
		assert.Equal(t, admin.ScopeID, created.ScopeID)
		assert.Len(t, created.Identifier, 16)
		assert.True(t, strings.HasPrefix(created.Identifier, "PFLW"))

		err = bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct-horse-battery"))
		assert.NoError(t, err, "stored hash must verify against the password")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		svc := newTestService()

		_, err := svc.Create(adminCtx(), validInput())
		require.NoError(t, err)

		in := validInput()
		in.Email = "Dana@Example.com"
		_, err = svc.Create(adminCtx(), in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		svc := newTestService()
		user := domain.ActorContext{ActorID: 1, Role: domain.RoleUser, ScopeID: 100}

		_, err := svc.Create(requestcontext.WithActor(context.Background(), user), validInput())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("validation", func(t *testing.T) {
		svc := newTestService()

		tests := []struct {
			name   string
			mutate func(*CreateInput)
		}{
			{"bad email", func(in *CreateInput) { in.Email = "not-an-email" }},
			{"bare at sign", func(in *CreateInput) { in.Email = "@" }},
			{"double at sign", func(in *CreateInput) { in.Email = "@@" }},
			{"email with spaces", func(in *CreateInput) { in.Email = "has spaces@ nope" }},
			{"missing domain", func(in *CreateInput) { in.Email = "trailing@" }},
			{"overlong email", func(in *CreateInput) { in.Email = strings.Repeat("a", 250) + "@example.com" }},
			{"short password", func(in *CreateInput) { in.Password = "short" }},
			{"missing name", func(in *CreateInput) { in.FullName = "" }},
			{"bad role", func(in *CreateInput) { in.Role = "SUPERVISOR" }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				in := validInput()
				tt.mutate(&in)
				_, err := svc.Create(adminCtx(), in)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			})
		}
	})
}

func TestGetAccount(t *testing.T) {
	svc := newTestService()
	created, err := svc.Create(adminCtx(), validInput())
	require.NoError(t, err)

	t.Run("scope admin can view", func(t *testing.T) {
		acct, err := svc.Get(adminCtx(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Email, acct.Email)
	})

	t.Run("self can view", func(t *testing.T) {
		self := domain.ActorContext{ActorID: created.ID, Role: domain.RoleUser, ScopeID: 100}
		_, err := svc.Get(requestcontext.WithActor(context.Background(), self), created.ID)
		assert.NoError(t, err)
	})

	t.Run("stranger cannot view", func(t *testing.T) {
		stranger := domain.ActorContext{ActorID: 77, Role: domain.RoleUser, ScopeID: 100}
		_, err := svc.Get(requestcontext.WithActor(context.Background(), stranger), created.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Get(adminCtx(), 4242)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestListAccounts(t *testing.T) {
	svc := newTestService()

	first, err := svc.Create(adminCtx(), validInput())
	require.NoError(t, err)

	second := validInput()
	second.Email = "lee@example.com"
	second.FullName = "Lee Okafor"
	_, err = svc.Create(adminCtx(), second)
	require.NoError(t, err)

	otherAdmin := domain.ActorContext{ActorID: 60, Role: domain.RoleAdmin, ScopeID: 200}
	otherCtx := requestcontext.WithActor(context.Background(), otherAdmin)
	foreign := validInput()
	foreign.Email = "mika@elsewhere.com"
	_, err = svc.Create(otherCtx, foreign)
	require.NoError(t, err)

	t.Run("admin sees only accounts in their scope", func(t *testing.T) {
		accts, err := svc.List(adminCtx(), "")
		require.NoError(t, err)
		require.Len(t, accts, 2)
		assert.Equal(t, "dana@example.com", accts[0].Email)
		assert.Equal(t, "lee@example.com", accts[1].Email)
	})

	t.Run("email filter returns the matching account", func(t *testing.T) {
		accts, err := svc.List(adminCtx(), first.Email)
		require.NoError(t, err)
		require.Len(t, accts, 1)
		assert.Equal(t, first.ID, accts[0].ID)
	})

	t.Run("email filter hides accounts from other scopes", func(t *testing.T) {
		accts, err := svc.List(adminCtx(), "mika@elsewhere.com")
		require.NoError(t, err)
		assert.Empty(t, accts)
	})

	t.Run("email filter with no match is empty", func(t *testing.T) {
		accts, err := svc.List(adminCtx(), "nobody@example.com")
		require.NoError(t, err)
		assert.Empty(t, accts)
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		user := domain.ActorContext{ActorID: 1, Role: domain.RoleUser, ScopeID: 100}
		_, err := svc.List(requestcontext.WithActor(context.Background(), user), "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
