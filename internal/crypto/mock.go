package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor implements Encryptor for local development (no KMS required).
// Output is "mock:<binding>:<base64>" so it is recognisable in the table.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Seal(ctx context.Context, plaintext []byte, binding string) (string, error) {
	return mockPrefix + binding + ":" + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (m *MockEncryptor) Open(ctx context.Context, ciphertext string, binding string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ciphertext, mockPrefix+binding+":")
	if !ok {
		return nil, fmt.Errorf("failed to decrypt data: binding mismatch")
	}
	return base64.StdEncoding.DecodeString(rest)
}
