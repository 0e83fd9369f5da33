package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"thermascan/api/internal/models"
	"thermascan/api/internal/repository"
)

type fakeUserStore struct {
	byEmail map[string]models.User
	byID    map[string]models.User
	nextID  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: map[string]models.User{},
		byID:    map[string]models.User{},
	}
}

func (f *fakeUserStore) Create(ctx context.Context, user models.User) (models.User, error) {
	f.nextID++
	user.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func newAuthService(users UserStore) *AuthService {
	return NewAuthService(users, "test-secret", time.Hour, zerolog.Nop())
}

func TestAuth_RegisterLoginVerify(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users)

	registered, err := svc.Register(context.Background(), RegisterInput{
		Email:       "User@Example.com",
		Password:    "hunter2hunter2",
		DisplayName: "User",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if registered.User.Email != "user@example.com" {
		t.Errorf("Email should be normalized, got %q", registered.User.Email)
	}

	loggedIn, err := svc.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if loggedIn.AccessToken == "" {
		t.Fatal("Expected an access token")
	}

	user, err := svc.Verify(context.Background(), loggedIn.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != registered.User.ID {
		t.Errorf("Verify resolved %q, expected %q", user.ID, registered.User.ID)
	}
}

func TestAuth_RegisterDuplicateEmail(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users)

	input := RegisterInput{Email: "user@example.com", Password: "hunter2hunter2"}
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("First register failed: %v", err)
	}
	if _, err := svc.Register(context.Background(), input); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestAuth_LoginWrongPassword(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users)

	if _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "hunter2hunter2",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "wrong",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuth_VerifyRejectsGarbage(t *testing.T) {
	svc := newAuthService(newFakeUserStore())

	if _, err := svc.Verify(context.Background(), "not-a-token"); err == nil {
		t.Error("Expected an error for a malformed token")
	}
}

func TestAuth_VerifyRejectsUnknownUser(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users)

	result, err := svc.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	delete(users.byID, result.User.ID)

	if _, err := svc.Verify(context.Background(), result.AccessToken); err == nil {
		t.Error("Expected an error when the token's user no longer exists")
	}
}
