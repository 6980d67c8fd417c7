package model

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Identifiers are short, prefixed and opaque: mdl_1a2b3c4d,
// job_deadbeef, prof_pla_draft_9f3a.

func NewModelID() string {
	return "mdl_" + randomHex(8)
}

func NewJobID() string {
	return "job_" + randomHex(8)
}

func NewProfileID(name string) string {
	slug := slugify(name)
	if slug == "" {
		return "prof_" + randomHex(8)
	}
	return "prof_" + slug + "_" + randomHex(4)
}

func randomHex(n int) string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:n]
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('_')
		}
	}
	return b.String()
}
