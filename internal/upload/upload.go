package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"storefront/internal/config"
	"storefront/internal/metrics"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// MaxFileSize is the largest image accepted for upload.
const MaxFileSize = 5 << 20

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrTooLarge      = errors.New("file exceeds the 5MB limit")
	ErrNotConfigured = errors.New("image uploads are not configured")
	ErrUploadFailed  = errors.New("image upload failed")
)

// File is an image waiting to be uploaded.
type File struct {
	Name string
	Data []byte
}

// FileError ties an upload error to the file that caused it.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, file File) (string, error)
}

// Validate checks the sniffed content type and the size of a file.
func Validate(file File) error {
	if len(file.Data) > MaxFileSize {
		return ErrTooLarge
	}
	mtype := mimetype.Detect(file.Data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return ErrNotImage
	}
	return nil
}

// UploadAll uploads files in order and stops at the first failure. The URLs
// uploaded before the failure are returned along with the error.
func UploadAll(ctx context.Context, uploader Uploader, files []File) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, file := range files {
		url, err := uploader.Upload(ctx, file)
		if err != nil {
			return urls, &FileError{File: file.Name, Err: err}
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Cloudinary uploads unsigned images with an upload preset.
type Cloudinary struct {
	cfg     config.CloudinaryConfig
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCloudinary creates a Cloudinary uploader. A nil client means
// http.DefaultClient.
func NewCloudinary(cfg config.CloudinaryConfig, client *http.Client, m *metrics.Metrics, logger *zap.Logger) *Cloudinary {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudinary.com/v1_1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cloudinary{cfg: cfg, client: client, logger: logger, metrics: m}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Endpoint returns the upload URL for the configured cloud.
func (c *Cloudinary) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.CloudName + "/image/upload"
}

// Upload validates file and posts it to Cloudinary.
func (c *Cloudinary) Upload(ctx context.Context, file File) (string, error) {
	if c.cfg.CloudName == "" || c.cfg.UploadPreset == "" {
		return "", ErrNotConfigured
	}

	if err := Validate(file); err != nil {
		c.metrics.Upload(metrics.UploadRejected)
		return "", err
	}

	body, contentType, err := c.encode(file)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.Upload(metrics.UploadFailed)
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	var decoded cloudinaryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil && resp.StatusCode == http.StatusOK {
		c.metrics.Upload(metrics.UploadFailed)
		return "", fmt.Errorf("%w: invalid response: %v", ErrUploadFailed, err)
	}

	if resp.StatusCode != http.StatusOK || decoded.SecureURL == "" {
		message := http.StatusText(resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			message = decoded.Error.Message
		}
		c.logger.Warn("Cloudinary rejected upload",
			zap.String("file", file.Name),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		c.metrics.Upload(metrics.UploadFailed)
		return "", fmt.Errorf("%w: %s", ErrUploadFailed, message)
	}

	c.metrics.Upload(metrics.UploadSucceeded)
	c.logger.Debug("Image uploaded",
		zap.String("file", file.Name),
		zap.String("url", decoded.SecureURL),
	)

	return decoded.SecureURL, nil
}

func (c *Cloudinary) encode(file File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := file.Name
	if name == "" {
		name = "upload"
	}

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}

	if err := w.WriteField("upload_preset", c.cfg.UploadPreset); err != nil {
		return nil, "", fmt.Errorf("failed to write upload preset: %w", err)
	}
	if c.cfg.Folder != "" {
		if err := w.WriteField("folder", c.cfg.Folder); err != nil {
			return nil, "", fmt.Errorf("failed to write folder: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
