package userstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrEthical07/sessionauth"
)

// Memory is an in-process credential store. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	byName   map[string]sessionauth.User
	nameByID map[string]string
}

// NewMemory returns an empty [Memory] store.
func NewMemory() *Memory {
	return &Memory{
		byName:   make(map[string]sessionauth.User),
		nameByID: make(map[string]string),
	}
}

// GetByUsername returns the user stored under username.
func (m *Memory) GetByUsername(ctx context.Context, username string) (sessionauth.User, error) {
	if err := ctx.Err(); err != nil {
		return sessionauth.User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byName[username]
	if !ok {
		return sessionauth.User{}, sessionauth.ErrUserNotFound
	}
	return user, nil
}

// Create stores user unless its username or id is already taken. A taken
// id yields [ErrDuplicateID].
func (m *Memory) Create(ctx context.Context, user sessionauth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.ID == "" || user.Username == "" {
		return fmt.Errorf("%w: user id and username are required", sessionauth.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[user.Username]; ok {
		return fmt.Errorf("%w: username %q already exists", sessionauth.ErrStoreConflict, user.Username)
	}
	if _, ok := m.nameByID[user.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, user.ID)
	}

	m.byName[user.Username] = user
	m.nameByID[user.ID] = user.Username
	return nil
}

// UpdatePasswordHash replaces the stored hash of userID.
func (m *Memory) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.nameByID[userID]
	if !ok {
		return sessionauth.ErrUserNotFound
	}
	user := m.byName[name]
	user.PasswordHash = passwordHash
	m.byName[name] = user
	return nil
}

// Len returns the number of stored users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}
