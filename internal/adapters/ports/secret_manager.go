package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Metadata  map[string]string // Additional secret metadata
	Value     string            // The secret value (e.g., gateway API secret)
	Version   string            // Secret version identifier
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for reading secrets from a secret management service
// Supports multiple backends: AWS Secrets Manager, HashiCorp Vault, local files.
// Implementations cache secrets with a TTL.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - AWS: "saju-payments/gateway/api-secret"
	//   - Vault: "saju-payments/gateway" under the configured KV mount
	//   - Local: file path relative to the base directory
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// GetSecretVersion retrieves a specific version of a secret
	// Useful during secret rotation to access previous version
	GetSecretVersion(ctx context.Context, path string, version string) (*Secret, error)
}
