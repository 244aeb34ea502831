// Package objectpath derives the on-disk path for an object from its
// (bucket, key) identity. The derivation is independent of
// placement: it only decides where on a given disk an object's xl.meta and
// chunk files live, not which disk.
package objectpath

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the 16-hex-char object hash for (bucket, key): the first 16
// hex characters of the BLAKE2b-256 digest of "bucket/key".
func Hash(bucket, key string) string {
	sum := blake2b.Sum256([]byte(bucket + "/" + key))
	return hex.EncodeToString(sum[:])[:16]
}

// Path returns "prefix/hash/" for (bucket, key): the directory, relative to
// a disk's data root, holding xl.meta and numbered chunk files.
func Path(bucket, key string) string {
	h := Hash(bucket, key)
	return h[:2] + "/" + h + "/"
}

// VersionPath returns the directory for a specific version of an object:
// "{object_path}/versions/{version_id}/".
func VersionPath(bucket, key, versionID string) string {
	return Path(bucket, key) + "versions/" + versionID + "/"
}
