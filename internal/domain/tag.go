package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tag is a label a traveller attaches to a reviewed run.
// Tags are global; identity is the Slug, which is always lowercase and hyphenated.
// Name keeps the casing supplied by whoever first created the tag.
type Tag struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}
