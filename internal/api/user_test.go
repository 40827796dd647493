package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/user"
)

type userStubRepo struct {
	created *user.User
}

func (s *userStubRepo) CreateUser(ctx context.Context, username string) (*user.User, error) {
	return s.created, nil
}

func (s *userStubRepo) GetByCode(ctx context.Context, code string) (*user.User, error) {
	return nil, errors.New("not implemented")
}

func (s *userStubRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return nil, errors.New("not implemented")
}

func TestCreateUserRejectsEmptyUsername(t *testing.T) {
	t.Parallel()

	h := NewUserHandler(&userStubRepo{}, zerolog.Nop())
	app := fiber.New()
	app.Post("/users", h.CreateUser)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"username":""}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateUserSucceeds(t *testing.T) {
	t.Parallel()

	h := NewUserHandler(&userStubRepo{created: &user.User{ID: 1, Username: "alice", UserCode: "abc"}}, zerolog.Nop())
	app := fiber.New()
	app.Post("/users", h.CreateUser)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"username":"alice"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}
