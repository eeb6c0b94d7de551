package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := NewService(store.NewMemoryStore())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestRegister(t *testing.T) {
	s := newService(t)

	u, err := s.Register(context.Background(), "Taro Yamada", "Taro@Example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "taro@example.com", u.Email) // normalized
	assert.Equal(t, RoleCustomer, u.Role)
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NotEmpty(t, u.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)

	_, err := s.Register(context.Background(), "", "bad-email", "123")
	var errs validate.FieldErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "Taro Yamada", "taro@example.com", "secret1")
	require.NoError(t, err)

	// Case differences do not make the address unique.
	_, err = s.Register(ctx, "Other Taro", "TARO@example.com", "secret2")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestAuthenticate(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	registered, err := s.Register(ctx, "Taro Yamada", "taro@example.com", "secret1")
	require.NoError(t, err)

	u, err := s.Authenticate("taro@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = s.Authenticate("taro@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate("nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetByEmail(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "Taro Yamada", "taro@example.com", "secret1")
	require.NoError(t, err)

	u, err := s.GetByEmail("TARO@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "Taro Yamada", u.Name)

	_, err = s.GetByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
