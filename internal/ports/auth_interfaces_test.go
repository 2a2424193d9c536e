package ports_test

import (
	"testing"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/mocks"
	fakes "github.com/bilyanhadzhi/auth-server-mjt/internal/mocks/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.UserStore = (*fakes.MemoryUserStore)(nil)
	var _ ports.SessionTable = (*fakes.MemorySessionTable)(nil)
	var _ ports.SessionIndex = (*fakes.MemorySessionIndex)(nil)
	var _ ports.AuditLogger = (*mocks.MockAuditLogger)(nil)
	var _ ports.PasswordHasher = (*mocks.MockPasswordHasher)(nil)
	var _ ports.UserStore = (*mocks.MockUserStore)(nil)
	var _ ports.SessionTable = (*mocks.MockSessionTable)(nil)
}
