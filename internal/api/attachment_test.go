package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

func newUploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/attachments", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadRejectsMissingIdentity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := NewAttachmentHandler(dir, 1024, "/attachments", zerolog.Nop())

	app := fiber.New()
	app.Post("/attachments", h.Upload)

	req := newUploadRequest(t, "file", "note.txt", []byte("hello"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUploadWritesFileAndReturnsURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := NewAttachmentHandler(dir, 1024, "/attachments", zerolog.Nop())

	app := fiber.New()
	app.Post("/attachments", func(c fiber.Ctx) error {
		c.Locals("userID", int64(1))
		return c.Next()
	}, h.Upload)

	req := newUploadRequest(t, "file", "note.txt", []byte("hello world"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := NewAttachmentHandler(dir, 4, "/attachments", zerolog.Nop())

	app := fiber.New()
	app.Post("/attachments", func(c fiber.Ctx) error {
		c.Locals("userID", int64(1))
		return c.Next()
	}, h.Upload)

	req := newUploadRequest(t, "file", "note.txt", []byte("hello world"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
