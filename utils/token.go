package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionToken returns an opaque 32-char bearer token for a table session.
func NewSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
