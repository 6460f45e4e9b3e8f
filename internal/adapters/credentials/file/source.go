package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	credentialsFileName = "credentials.toml"

	agentNameEnv = "ARENA_AGENT_NAME"
	apiKeyEnv    = "ARENA_API_KEY"
)

// Source reads the agent's identity from credentials.toml in the data
// directory. Environment variables override the file. The file is owned by
// the surrounding tooling and never written here.
type Source struct {
	dataDir string
}

var _ ports.CredentialSource = (*Source)(nil)

type credentialsSchema struct {
	AgentName string `toml:"agent_name"`
	APIKey    string `toml:"api_key"`
}

func NewSource(dataDir string) *Source {
	return &Source{dataDir: filepath.Clean(dataDir)}
}

func (s *Source) Load(ctx context.Context) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	var schema credentialsSchema
	data, err := os.ReadFile(filepath.Join(s.dataDir, credentialsFileName))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &schema); err != nil {
			return domain.Credentials{}, fmt.Errorf("decode credentials file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment variables may still provide everything.
	default:
		return domain.Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	creds := domain.Credentials{
		AgentName: schema.AgentName,
		APIKey:    schema.APIKey,
	}
	if value := os.Getenv(agentNameEnv); value != "" {
		creds.AgentName = value
	}
	if value := os.Getenv(apiKeyEnv); value != "" {
		creds.APIKey = value
	}

	if err := creds.Validate(); err != nil {
		return domain.Credentials{}, fmt.Errorf("load credentials from %s: %w", s.dataDir, err)
	}

	return creds, nil
}
