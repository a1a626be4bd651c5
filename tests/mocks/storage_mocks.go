package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockBodyStore implements storage.BodyStore
type MockBodyStore struct {
	mock.Mock
}

// Save stores a body and returns its reference
func (m *MockBodyStore) Save(body []byte) (string, error) {
	args := m.Called(body)
	return args.String(0), args.Error(1)
}

// Get retrieves a body by its reference
func (m *MockBodyStore) Get(ref string) ([]byte, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Delete removes a body by its reference
func (m *MockBodyStore) Delete(ref string) error {
	args := m.Called(ref)
	return args.Error(0)
}
