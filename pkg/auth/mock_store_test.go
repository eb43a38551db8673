package auth

import (
	"sync"
)

// mockStore is an in-memory CredentialStore with injectable errors
type mockStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	storeErr error
	listErr  error
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]*Account)}
}

func (m *mockStore) Store(account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	stored := *account
	m.accounts[account.Name] = &stored
	return nil
}

func (m *mockStore) Retrieve(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	out := *account
	return &out, nil
}

func (m *mockStore) List() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		a := *account
		out = append(out, &a)
	}
	return out, nil
}

func (m *mockStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *mockStore) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[name]
	return ok
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}
