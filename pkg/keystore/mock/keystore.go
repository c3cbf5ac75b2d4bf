package mock

import (
	"testing"

	"github.com/golang/mock/gomock"
)

func NewKeyStore(t *testing.T) *MockKeyStore {
	return NewMockKeyStore(gomock.NewController(t))
}
