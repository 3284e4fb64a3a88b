package modelrelay

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// IsDataURL reports whether s is already an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// EncodeImageToDataURL reads an image file and returns a base64 data URL
// suitable for chat-completions image input. Already-encoded data URLs pass
// through unchanged.
func EncodeImageToDataURL(path string) (string, error) {
	if IsDataURL(path) {
		return path, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	return EncodeImageBytesToDataURL(raw, guessMIME(path)), nil
}

// EncodeImageBytesToDataURL encodes raw image bytes as a data URL. An empty
// mediaType defaults to image/png.
func EncodeImageBytesToDataURL(raw []byte, mediaType string) string {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(raw))
}

func guessMIME(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "image/png"
}
