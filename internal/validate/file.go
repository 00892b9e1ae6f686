package validate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// File validation errors
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
)

// Common MIME type categories
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageGIF  = "image/gif"
	MIMEImageWebP = "image/webp"
)

// AllowedImageTypes defines allowed image MIME types.
var AllowedImageTypes = []string{
	MIMEImageJPEG,
	MIMEImagePNG,
	MIMEImageGIF,
	MIMEImageWebP,
}

// AllowedAvatarTypes defines the MIME types accepted for profile avatars.
// Animated formats are excluded on purpose.
var AllowedAvatarTypes = []string{
	MIMEImageJPEG,
	MIMEImagePNG,
}

// FileConstraints defines validation constraints for file uploads.
type FileConstraints struct {
	AllowedTypes []string // Allowed MIME types
	MaxSizeBytes int64    // Maximum file size in bytes
	MinSizeBytes int64    // Minimum file size in bytes (0 = no minimum)
}

// MIMEType validates a MIME type against allowed types.
// Returns the normalized MIME type (lowercased) and an error if invalid.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	// Normalize: trim whitespace and lowercase
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if mimeType == "" {
		return "", ErrEmpty
	}

	// Check if in allowed list
	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize validates a file size against constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}

	if constraints.MinSizeBytes > 0 && sizeBytes < constraints.MinSizeBytes {
		return fmt.Errorf("%w: got %d bytes, minimum is %d", ErrFileTooSmall, sizeBytes, constraints.MinSizeBytes)
	}

	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}

	return nil
}

// File validates both MIME type and file size.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	// Validate MIME type
	validatedType, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}

	// Validate size
	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}

	return validatedType, nil
}

// ImageFile validates an image file upload.
// Uses default image constraints: allowed image types, max 10MB.
func ImageFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedImageTypes,
		MaxSizeBytes: 10 * 1024 * 1024, // 10MB
		MinSizeBytes: 0,
	})
}

// AvatarImage validates avatar bytes. The MIME type is sniffed from the
// content rather than trusted from the request, so a renamed file of the
// wrong type still fails.
func AvatarImage(data []byte, maxSizeBytes int64) (string, error) {
	constraints := FileConstraints{
		AllowedTypes: AllowedAvatarTypes,
		MaxSizeBytes: maxSizeBytes,
	}
	if err := FileSize(int64(len(data)), constraints); err != nil {
		return "", err
	}
	detected := http.DetectContentType(data)
	return MIMEType(detected, constraints.AllowedTypes)
}
