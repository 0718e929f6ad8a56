package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Allowed frame MIME types.
var allowedFrameTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// FileFrameStore writes webcam frames to local disk under content-addressed
// names, so a re-sent frame maps to the same file.
type FileFrameStore struct {
	dir      string
	maxBytes int64
}

// NewFileFrameStore creates a new FileFrameStore rooted at dir.
func NewFileFrameStore(dir string, maxBytes int64) *FileFrameStore {
	return &FileFrameStore{dir: dir, maxBytes: maxBytes}
}

// Save validates and stores a frame. The returned reference is relative to
// the store root: frames/<blake2b-256 hex><ext>.
func (s *FileFrameStore) Save(_ context.Context, payload []byte, contentType string) (string, error) {
	ext, ok := allowedFrameTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFrameType, contentType, strings.Join(allowedFrameTypeList(), ", "))
	}
	if len(payload) == 0 {
		return "", ErrEmptyFrame
	}
	if int64(len(payload)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFrameTooLarge, len(payload), s.maxBytes)
	}

	sum := blake2b.Sum256(payload)
	name := hex.EncodeToString(sum[:]) + ext
	dest := filepath.Join(s.dir, name)

	if _, err := os.Stat(dest); err == nil {
		return "frames/" + name, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}

	// Write to a temp file first so readers never see a partial frame.
	tmp, err := os.CreateTemp(s.dir, ".frame-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename frame: %w", err)
	}

	return "frames/" + name, nil
}

func allowedFrameTypeList() []string {
	types := make([]string, 0, len(allowedFrameTypes))
	for t := range allowedFrameTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
