package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewReference returns a 12 character upper-case hex reference used as the
// public order and reservation number.
func NewReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
}
