package helpers

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator generates various types of IDs
type IDGenerator struct{}

// NewIDGenerator creates a new ID generator
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GenerateLocalScheduleID generates a schedule id for manually created events.
// The local_ prefix keeps them out of panel-owned deletes.
func (g *IDGenerator) GenerateLocalScheduleID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "local_" + hex
}

// GenerateSessionToken generates an opaque session token
func (g *IDGenerator) GenerateSessionToken() string {
	return uuid.New().String() + uuid.New().String()
}
