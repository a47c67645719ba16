package store

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// NewObjectPath builds the canonical object path for a new artifact:
// <normalized_agent_id>/<uuid>.<ext>. The bucket name is never part of the
// path, so callers must not re-prefix it.
func NewObjectPath(normalizedAgentID, filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%s%s", normalizedAgentID, uuid.NewString(), ext)
}
