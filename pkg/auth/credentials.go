package auth

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account is a named upstream credential: an opaque OAuth bearer token plus the
// user agent it was registered with
type Account struct {
	Name         string    `json:"name"`
	AccessToken  string    `json:"access_token"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is one place accounts can live
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(name string) (*Account, error)
	List() ([]*Account, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager fans out over several stores, tried in order
type Manager struct {
	stores []CredentialStore
}

// NewManager uses the system keychain when available, then an encrypted file
// under the user config directory, then the environment
func NewManager() (*Manager, error) {
	var stores []CredentialStore
	if kr, err := NewKeyringStore(); err == nil {
		stores = append(stores, kr)
	}

	dir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	file, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}

	stores = append(stores, file, NewEnvironmentStore())
	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store stamps LastModified and saves to the first store that accepts the account
func (m *Manager) Store(account *Account) error {
	switch {
	case account == nil || account.Name == "":
		return errors.New("account name is required")
	case account.AccessToken == "":
		return errors.New("access token is required")
	}
	account.LastModified = time.Now()

	var failures []error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		return errors.New("no available credential stores")
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(failures...))
}

// Retrieve returns the account from the first store that has it
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault prefers SUBARCHIVE_ACCESS_TOKEN, then the most recently stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if env, ok := store.(*EnvironmentStore); ok {
			if account, err := env.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, _ := m.List()
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return slices.MaxFunc(accounts, func(a, b *Account) int {
		return a.LastModified.Compare(b.LastModified)
	}), nil
}

// List merges all stores by name, keeping the newest copy, sorted by name.
// Stores that fail to list are skipped.
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)
	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, a := range accounts {
			if seen, ok := byName[a.Name]; !ok || a.LastModified.After(seen.LastModified) {
				byName[a.Name] = a
			}
		}
	}

	out := make([]*Account, 0, len(byName))
	for _, a := range byName {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Account) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete removes the account everywhere it is stored
func (m *Manager) Delete(name string) error {
	deleted := false
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err != nil {
			lastErr = err
			continue
		}
		deleted = true
	}

	switch {
	case deleted:
		return nil
	case lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable):
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	default:
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}
}

// configDir returns the per-user subarchive directory, creating it
func configDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		var err error
		if base, err = os.UserConfigDir(); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(base, "subarchive")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy with the token masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	masked.AccessToken = maskString(account.AccessToken)
	return &masked
}

// maskString keeps the first and last four characters
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
