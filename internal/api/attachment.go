package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
	"github.com/tienphuckx/anony-box-backbone/internal/media"
	"github.com/tienphuckx/anony-box-backbone/internal/message"
)

// AttachmentHandler serves attachment upload. The store only ever sees a URL
// and an AttachmentType (internal/message.NewAttachment); this handler is
// what produces that URL by writing the file to local disk.
type AttachmentHandler struct {
	storageDir string
	maxBytes   int64
	publicBase string
	log        zerolog.Logger
}

// NewAttachmentHandler creates a new attachment handler. storageDir is
// created if missing. publicBase is prefixed to the stored filename to form
// the URL returned to the caller (e.g. "/attachments").
func NewAttachmentHandler(storageDir string, maxBytes int64, publicBase string, logger zerolog.Logger) *AttachmentHandler {
	return &AttachmentHandler{storageDir: storageDir, maxBytes: maxBytes, publicBase: publicBase, log: logger}
}

type uploadResponse struct {
	URL            string                 `json:"url"`
	AttachmentType message.AttachmentType `json:"attachment_type"`
	Width          int                    `json:"width,omitempty"`
	Height         int                    `json:"height,omitempty"`
}

var extToAttachmentType = map[string]message.AttachmentType{
	".png":  message.AttachmentImage,
	".jpg":  message.AttachmentImage,
	".jpeg": message.AttachmentImage,
	".gif":  message.AttachmentImage,
	".webp": message.AttachmentImage,
	".mp4":  message.AttachmentVideo,
	".mov":  message.AttachmentVideo,
	".webm": message.AttachmentVideo,
	".mp3":  message.AttachmentAudio,
	".wav":  message.AttachmentAudio,
	".ogg":  message.AttachmentAudio,
	".txt":  message.AttachmentText,
	".zip":  message.AttachmentCompression,
	".gz":   message.AttachmentCompression,
}

// Upload handles POST /api/v1/attachments: a multipart file upload that
// returns a URL suitable for message.NewAttachment. Participant-only
// enforcement happens at the protocol layer when the attachment is actually
// attached to a Send frame; this endpoint only requires a known identity.
func (h *AttachmentHandler) Upload(c fiber.Ctx) error {
	if _, ok := userID(c); !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "missing file field")
	}
	if fileHeader.Size > h.maxBytes {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.ConstraintViolation, "file exceeds the maximum upload size")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	attType, ok := extToAttachmentType[ext]
	if !ok {
		attType = message.AttachmentBinary
	}

	name, err := randomFilename(ext)
	if err != nil {
		h.log.Error().Err(err).Msg("generate attachment filename failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	if err := os.MkdirAll(h.storageDir, 0o755); err != nil {
		h.log.Error().Err(err).Msg("create attachment storage dir failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	dest := filepath.Join(h.storageDir, name)
	src, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("open uploaded attachment failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		h.log.Error().Err(err).Msg("read uploaded attachment failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}
	if int64(len(data)) > h.maxBytes {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.ConstraintViolation, "file exceeds the maximum upload size")
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		h.log.Error().Err(err).Msg("write attachment to disk failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	resp := uploadResponse{
		URL:            h.publicBase + "/" + name,
		AttachmentType: attType,
	}

	if attType == message.AttachmentImage {
		if dims, err := media.Probe(data); err == nil {
			resp.Width = dims.Width
			resp.Height = dims.Height
		} else {
			h.log.Warn().Err(err).Str("file", name).Msg("probe image dimensions failed")
		}
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, resp)
}

func randomFilename(ext string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random filename: %w", err)
	}
	return hex.EncodeToString(buf) + ext, nil
}
