package account

import (
	"time"

	"paflow/pkg/domain"
)

// Account is a platform user: a licensee employee, a list owner contact or a
// broker agent. Credential verification is out of scope; the hash is stored
// so a future session layer can check it.
type Account struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	FullName     string      `json:"full_name"`
	Role         domain.Role `json:"role"`
	ScopeID      int64       `json:"scope_id"`

	// Identifier is the fixed-width display identifier assigned from the
	// store-generated primary key at creation.
	Identifier string `json:"identifier"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
