package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("this email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a registered account. PasswordHash is bcrypt; the plain password
// never leaves Register/Authenticate.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Service owns the users collection. Sessions and tokens are handled
// elsewhere; this only stores and checks account records.
type Service struct {
	mu    sync.RWMutex
	store store.Store
	users map[string]*User
	log   *logrus.Entry
}

func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		users: make(map[string]*User),
		log:   logrus.WithField("component", "user"),
	}
}

// Load fills the cache from the persistence adapter.
func (s *Service) Load(ctx context.Context) error {
	docs, err := s.store.GetAll(ctx, store.CollectionUsers)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*User, len(docs))
	for _, doc := range docs {
		var u User
		if err := json.Unmarshal(doc.Data, &u); err != nil {
			return fmt.Errorf("decode user %s: %w", doc.ID, err)
		}
		u.ID = doc.ID
		s.users[u.ID] = &u
	}
	return nil
}

func (s *Service) Get(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByEmail looks an account up case-insensitively.
func (s *Service) GetByEmail(email string) (*User, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.ToLower(u.Email) == want {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// Register validates the sign-up data, enforces email uniqueness and stores
// the account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	if errs := validate.Registration(name, email, password); errs != nil {
		return nil, errs
	}
	if _, err := s.GetByEmail(email); err == nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         RoleCustomer,
		CreatedAt:    time.Now(),
	}

	id, err := s.store.Add(ctx, store.CollectionUsers, u)
	if err != nil {
		return nil, err
	}
	u.ID = id

	s.mu.Lock()
	s.users[id] = u
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"id": id, "email": u.Email}).Info("user registered")
	cp := *u
	return &cp, nil
}

// Authenticate checks an email/password pair against the stored hash.
func (s *Service) Authenticate(email, password string) (*User, error) {
	u, err := s.GetByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
