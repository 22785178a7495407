package account

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"paflow/internal/paf/pafid"
	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/platform/sentinel"
	"paflow/pkg/requestcontext"
)

// Service manages platform accounts. Only licensee administrators create
// accounts, and always within their own scope.
type Service struct {
	store        Store
	platformCode string
	logger       *slog.Logger
}

func NewService(store Store, platformCode string, logger *slog.Logger) *Service {
	return &Service{store: store, platformCode: platformCode, logger: logger}
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	FullName string      `json:"full_name"`
	Role     domain.Role `json:"role"`
}

func (in CreateInput) validate() error {
	email := strings.TrimSpace(in.Email)
	if !govalidator.StringLength(email, "3", "255") || !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}
	if len(in.Password) < 12 {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 12 characters")
	}
	if in.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if !in.Role.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	return nil
}

// Create registers an account in the calling administrator's scope. The
// display identifier is assigned from the store-generated primary key inside
// the creating transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Account, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "administrator access is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	acct := &Account{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Role:         in.Role,
		ScopeID:      actor.ScopeID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	scopeClassification := strconv.FormatInt(actor.ScopeID, 10)
	created, err := s.store.Create(ctx, acct, func(id int64) string {
		return pafid.Generate(s.platformCode, scopeClassification, "", id, pafid.ClassUser)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	s.logger.InfoContext(ctx, "account created",
		"account_id", created.ID,
		"role", created.Role,
		"scope_id", created.ScopeID,
		"request_id", requestcontext.RequestID(ctx))
	return created, nil
}

// Get returns one account. Administrators see any account in their scope;
// everyone else sees only themselves.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	isSelf := actor.ActorID == acct.ID
	isScopeAdmin := actor.Role == domain.RoleAdmin && actor.ScopeID == acct.ScopeID
	if !isSelf && !isScopeAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "not permitted to view this account")
	}
	return acct, nil
}

// List returns the accounts in the calling administrator's scope. A non-empty
// email narrows the result to the matching account, if it exists in that
// scope.
func (s *Service) List(ctx context.Context, email string) ([]*Account, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "administrator access is required")
	}

	if email != "" {
		acct, err := s.store.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return []*Account{}, nil
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
		}
		if acct.ScopeID != actor.ScopeID {
			return []*Account{}, nil
		}
		return []*Account{acct}, nil
	}

	accts, err := s.store.ListByScope(ctx, actor.ScopeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return accts, nil
}
