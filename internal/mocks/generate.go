// Package mocks provides gomock doubles for the auth server's ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	hasher := mocks.NewMockPasswordHasher(ctrl)
//	hasher.EXPECT().Hash("pw").Return("", errors.New("boom"))
//
// Hand-written in-memory doubles live in the auth subpackage.
package mocks

// AuditLogger, PasswordHasher, UserStore and SessionTable from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/bilyanhadzhi/auth-server-mjt/internal/ports AuditLogger,PasswordHasher,UserStore,SessionTable
