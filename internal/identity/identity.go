// Package identity assigns stable ids to extracted string locations.
//
// An id hashes the file category and the structural path, never the text:
// the text is exactly what translators change, so hashing it would give
// every edit a new identity. Structural paths do encode array indices, so
// inserting an event mid-list shifts ids for everything after it; the store
// merge compensates by pairing orphaned and new entries via content
// fingerprints instead of trying to make the id itself survive insertion.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// idLen is the number of hex characters kept from the hash. 64 bits is far
// beyond what a single game project needs to stay collision-free.
const idLen = 16

// ID derives the stable identifier for a location. scope names the file the
// location lives in (category plus source path, so two map files with the
// same in-file path stay distinct); path is the structural path within it.
func ID(scope, path string) string {
	h := sha256.Sum256([]byte(scope + "||" + path))
	return hex.EncodeToString(h[:])[:idLen]
}

// Scope builds the id scope for a source file.
func Scope(category, sourceFile string) string {
	return category + ":" + sourceFile
}

// Fingerprint hashes original text for merge-time content matching. It is
// never part of the id.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])[:idLen]
}

// JoinPath builds the dotted structural path string from segments.
func JoinPath(segments ...string) string {
	return strings.Join(segments, ".")
}
