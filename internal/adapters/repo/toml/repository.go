package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName           = "config"
	configType           = "toml"
	identitiesPathKey    = "identities.path"
	identitiesFileMode   = 0o600
	identitiesDirMode    = 0o700
	identitiesConfigDir  = ".fanout"
	identitiesConfigFile = "identities.toml"
	tempFilePattern      = ".identities-*.toml.tmp"
)

// Repository stores identities in a versioned TOML file. Writes go through a
// temp file and rename so readers never see a partial file.
type Repository struct {
	identitiesPath string
	mu             *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.IdentityRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, identitiesConfigDir, identitiesConfigFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, identitiesConfigDir))
	cfg.SetDefault(identitiesPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	identitiesPath := cfg.GetString(identitiesPathKey)
	if identitiesPath == "" {
		return nil, fmt.Errorf("%w: identities path is empty", domain.ErrConfiguration)
	}
	identitiesPath, err = normalizeIdentitiesPath(identitiesPath)
	if err != nil {
		return nil, err
	}

	return &Repository{identitiesPath: identitiesPath, mu: lockForPath(identitiesPath)}, nil
}

func (r *Repository) Path() string {
	return r.identitiesPath
}

func (r *Repository) Save(ctx context.Context, identity domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := identity.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(identity)
	updated := false
	for i := range file.Identities {
		if file.Identities[i].Name == encoded.Name {
			file.Identities[i] = encoded
			updated = true
			break
		}
	}

	if !updated {
		file.Identities = append(file.Identities, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) Delete(ctx context.Context, name domain.IdentityName) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Identities[:0]
	found := false
	for _, entry := range file.Identities {
		if entry.Name == string(name) {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, name)
	}
	file.Identities = kept

	return r.writeSchema(file)
}

func (r *Repository) GetByName(ctx context.Context, name domain.IdentityName) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Identity{}, err
	}

	for _, entry := range file.Identities {
		if entry.Name == string(name) {
			return fromSchema(entry), nil
		}
	}

	return domain.Identity{}, domain.ErrIdentityNotFound
}

func (r *Repository) List(ctx context.Context) ([]domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	identities := make([]domain.Identity, 0, len(file.Identities))
	for _, entry := range file.Identities {
		identities = append(identities, fromSchema(entry))
	}

	return identities, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.identitiesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read identities file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode identities file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeIdentitiesPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve identities path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.identitiesPath), identitiesDirMode); err != nil {
		return fmt.Errorf("create identities directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode identities file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.identitiesPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp identities file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp identities file: %w", err)
	}

	if err := tempFile.Chmod(identitiesFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp identities file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp identities file: %w", err)
	}

	if err := os.Rename(tempName, r.identitiesPath); err != nil {
		return fmt.Errorf("replace identities file: %w", err)
	}

	cleanup = false

	return nil
}

func toSchema(identity domain.Identity) identitySchema {
	var creds map[string]string
	for k, v := range identity.Credentials {
		// Resolved secrets never go to disk.
		if k == domain.CredentialToken {
			continue
		}
		if creds == nil {
			creds = make(map[string]string, len(identity.Credentials))
		}
		creds[k] = v
	}

	return identitySchema{
		Name:        string(identity.Name),
		SecretRef:   identity.SecretRef,
		Credentials: creds,
	}
}

func fromSchema(entry identitySchema) domain.Identity {
	creds := make(domain.Credentials, len(entry.Credentials))
	for k, v := range entry.Credentials {
		creds[k] = v
	}

	return domain.Identity{
		Name:        domain.IdentityName(entry.Name),
		SecretRef:   entry.SecretRef,
		Credentials: creds,
	}
}
