package ports

import (
	"context"

	"github.com/arenaverse/arenactl/internal/domain"
)

// CredentialSource reads the agent's identity from the external credential
// store. Read-only by contract.
type CredentialSource interface {
	Load(ctx context.Context) (domain.Credentials, error)
}
