package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/saju-payments/internal/adapters/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token", "approle", "kubernetes"
	AuthMethod string

	Token string

	RoleID   string
	SecretID string

	K8sTokenPath string
	K8sRole      string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL    time.Duration
	EnableCache bool

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:      address,
		AuthMethod:   "token",
		K8sTokenPath: "/var/run/secrets/kubernetes.io/serviceaccount/token",
		MountPath:    "secret",
		KVVersion:    "v2",
		CacheTTL:     5 * time.Minute,
		EnableCache:  true,
	}
}

// vaultAdapter implements the SecretManagerAdapter port for HashiCorp Vault
type vaultAdapter struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a new HashiCorp Vault adapter
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &vaultAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		return login(ctx, client, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})

	case "kubernetes":
		if cfg.K8sTokenPath == "" || cfg.K8sRole == "" {
			return fmt.Errorf("k8s_token_path and k8s_role are required for Kubernetes auth")
		}
		jwt, err := os.ReadFile(cfg.K8sTokenPath)
		if err != nil {
			return fmt.Errorf("failed to read k8s token: %w", err)
		}
		return login(ctx, client, "auth/kubernetes/login", map[string]interface{}{
			"jwt":  string(jwt),
			"role": cfg.K8sRole,
		})

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func login(ctx context.Context, client *vault.Client, loginPath string, data map[string]interface{}) error {
	resp, err := client.Logical().WriteWithContext(ctx, loginPath, data)
	if err != nil {
		return fmt.Errorf("%s failed: %w", loginPath, err)
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("%s returned no auth info", loginPath)
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret retrieves a secret by its path under the KV mount
func (a *vaultAdapter) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	if cached := a.cache.get(secretPath); cached != nil {
		a.logger.Debug("Secret retrieved from cache", zap.String("path", secretPath))
		return cached, nil
	}

	startTime := time.Now()
	secret, err := a.client.Logical().ReadWithContext(ctx, a.dataPath(secretPath))
	if err != nil {
		a.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", secretPath),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found: %s", secretPath)
	}

	result, err := a.parse(secret.Data)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", secretPath, err)
	}

	a.logger.Info("Secret retrieved from Vault",
		zap.String("path", secretPath),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	a.cache.set(secretPath, result)
	return result, nil
}

// GetSecretVersion retrieves a specific version of a secret (KV v2 only)
func (a *vaultAdapter) GetSecretVersion(ctx context.Context, secretPath string, version string) (*ports.Secret, error) {
	if a.config.KVVersion != "v2" {
		return nil, fmt.Errorf("GetSecretVersion requires KV v2")
	}

	secret, err := a.client.Logical().ReadWithDataWithContext(ctx, a.dataPath(secretPath), map[string][]string{
		"version": {version},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read secret version: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret version not found: %s v%s", secretPath, version)
	}

	return a.parse(secret.Data)
}

func (a *vaultAdapter) dataPath(secretPath string) string {
	if a.config.KVVersion == "v2" {
		return path.Join(a.config.MountPath, "data", secretPath)
	}
	return path.Join(a.config.MountPath, secretPath)
}

// parse extracts the "value" key from a KV response. KV v2 wraps the
// payload in "data" and carries version info in "metadata".
func (a *vaultAdapter) parse(raw map[string]interface{}) (*ports.Secret, error) {
	data := raw
	result := &ports.Secret{Version: "1", Metadata: make(map[string]string)}

	if a.config.KVVersion == "v2" {
		inner, ok := raw["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		data = inner

		if metadata, ok := raw["metadata"].(map[string]interface{}); ok {
			if v, ok := metadata["version"].(json.Number); ok {
				result.Version = v.String()
			}
			if ct, ok := metadata["created_time"].(string); ok {
				result.CreatedAt = ct
			}
		}
	}

	value, _ := data["value"].(string)
	if value == "" {
		return nil, fmt.Errorf("secret value is empty or not found")
	}
	result.Value = value

	for k, v := range data {
		if str, ok := v.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}

	return result, nil
}
