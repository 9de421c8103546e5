// Package upload validates user-selected files before they enter a session.
package upload

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/cover-studio/internal/utils"
	"github.com/menta2k/cover-studio/pkg/processing"
)

// MaxBytes is the default upload size limit (10 MB).
const MaxBytes = 10 << 20

// Reason names the rule an upload broke.
type Reason string

const (
	ReasonType     Reason = "type"
	ReasonSize     Reason = "size"
	ReasonDecode   Reason = "decode"
	ReasonTooSmall Reason = "too_small"
)

// ValidationError is an input error shown inline next to the file picker.
// It never changes session state.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Config holds configuration for upload validation
type Config struct {
	MaxBytes         int64
	MinImageSize     int      // minimum width and height in pixels
	SupportedFormats []string // mime subtypes; empty accepts any image/*
}

// DefaultConfig accepts any image up to 10 MB.
func DefaultConfig() Config {
	return Config{MaxBytes: MaxBytes, MinImageSize: 1}
}

// Validator checks type, size and decodability of an upload.
type Validator struct {
	config    Config
	processor *processing.Processor
}

// New creates a Validator with default configuration
func New() *Validator {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Validator with custom configuration
func NewWithConfig(config Config) *Validator {
	if config.MaxBytes <= 0 {
		config.MaxBytes = MaxBytes
	}
	return &Validator{config: config, processor: processing.NewProcessor()}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	MimeType    string
	Bytes       int64
}

// Check applies the cheap type and size rules without decoding.
func (v *Validator) Check(mime string, size int64) error {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if !strings.HasPrefix(mime, "image/") {
		return &ValidationError{Reason: ReasonType, Message: "Please upload an image file"}
	}
	if !v.isFormatSupported(strings.TrimPrefix(mime, "image/")) {
		return &ValidationError{Reason: ReasonType, Message: fmt.Sprintf("Unsupported image format: %s", mime)}
	}
	if size > v.config.MaxBytes {
		return &ValidationError{
			Reason:  ReasonSize,
			Message: fmt.Sprintf("Image must be %s or smaller", utils.FormatFileSize(v.config.MaxBytes)),
		}
	}
	return nil
}

// Validate checks an upload and decodes it.
func (v *Validator) Validate(data []byte, mime string) (image.Image, ImageInfo, error) {
	if err := v.Check(mime, int64(len(data))); err != nil {
		return nil, ImageInfo{}, err
	}

	img, err := v.processor.DecodeBytes(data)
	if err != nil {
		return nil, ImageInfo{}, &ValidationError{Reason: ReasonDecode, Message: "The file could not be read as an image"}
	}

	info := GetImageInfo(img)
	info.MimeType = strings.ToLower(mime)
	info.Bytes = int64(len(data))

	if info.Width < v.config.MinImageSize || info.Height < v.config.MinImageSize {
		return nil, ImageInfo{}, &ValidationError{
			Reason:  ReasonTooSmall,
			Message: fmt.Sprintf("Image too small: %dx%d (minimum: %d)", info.Width, info.Height, v.config.MinImageSize),
		}
	}
	return img, info, nil
}

// GetImageInfo returns basic information about an image
func GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	info := ImageInfo{Width: bounds.Dx(), Height: bounds.Dy()}
	if info.Height > 0 {
		info.AspectRatio = float64(info.Width) / float64(info.Height)
	}
	return info
}

func (v *Validator) isFormatSupported(subtype string) bool {
	if len(v.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range v.config.SupportedFormats {
		if strings.EqualFold(subtype, supported) {
			return true
		}
	}
	return false
}
