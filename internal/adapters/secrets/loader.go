// Package secrets loads service credentials from AWS Secrets Manager, Vault or local files.
package secrets

import (
	"context"
	"fmt"

	"github.com/kevin07696/saju-payments/internal/adapters/ports"
	"go.uber.org/zap"
)

// Backend selects the secret manager implementation
type Backend string

const (
	BackendAWS   Backend = "aws"
	BackendVault Backend = "vault"
	BackendLocal Backend = "local"
)

// ManagerConfig selects and configures the secret backend
type ManagerConfig struct {
	Backend   Backend
	AWS       *AWSSecretsManagerConfig
	Vault     *VaultConfig
	LocalPath string
}

// NewSecretManager initializes the configured secret manager
func NewSecretManager(ctx context.Context, cfg ManagerConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Backend {
	case BackendAWS:
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws secret manager config is required")
		}
		return NewAWSSecretsManagerAdapter(ctx, cfg.AWS, logger)
	case BackendVault:
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault config is required")
		}
		return NewVaultAdapter(ctx, cfg.Vault, logger)
	case BackendLocal, "":
		logger.Warn("Using LOCAL secret manager - NOT for production use!",
			zap.String("base_path", cfg.LocalPath),
		)
		return NewLocalSecretManager(cfg.LocalPath, logger), nil
	default:
		return nil, fmt.Errorf("unsupported secret manager backend: %s", cfg.Backend)
	}
}

// ResolveOrFetch returns inline when set, otherwise reads the secret at path.
// Inline values come from environment variables in development setups.
func ResolveOrFetch(ctx context.Context, mgr ports.SecretManagerAdapter, inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", fmt.Errorf("neither a value nor a secret path is configured")
	}

	secret, err := mgr.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	if secret.Value == "" {
		return "", fmt.Errorf("secret %s is empty", path)
	}
	return secret.Value, nil
}
