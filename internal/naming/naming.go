// Package naming computes output file names for emitted assets.
//
// Development builds use plain names so paths stay stable while iterating.
// Production builds qualify every name with a content fingerprint so that
// browsers can cache emitted files forever.
package naming

import (
	"encoding/binary"
	"path"
	"strings"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/assetpipe/internal/mode"
)

// Policy maps a base name and extension to an output path.
type Policy struct {
	// Dir is the output sub directory, e.g. "img". Empty means the output root.
	Dir string `yaml:"dir,omitempty"`
	// Fingerprint adds the content fingerprint to every name.
	Fingerprint bool `yaml:"fingerprint"`
}

// ForMode returns the policy for dir used by the given mode.
func ForMode(m mode.Mode, dir string) Policy {
	return Policy{
		Dir:         dir,
		Fingerprint: m.IsProduction(),
	}
}

// Name returns the output path for a file. content is only read when the
// policy fingerprints names.
func (p Policy) Name(base, ext string, content []byte) string {
	ext = strings.TrimPrefix(ext, ".")

	file := base
	if p.Fingerprint {
		file += "." + Fingerprint(content)
	}
	if ext != "" {
		file += "." + ext
	}

	if p.Dir == "" {
		return file
	}
	return path.Join(p.Dir, file)
}

// Pattern renders the policy as a bundler name template using the
// [name] and [hash] placeholders.
func (p Policy) Pattern() string {
	file := "[name]"
	if p.Fingerprint {
		file += ".[hash]"
	}
	if p.Dir == "" {
		return file
	}
	return path.Join(p.Dir, file)
}

// Fingerprint returns the base58 encoded CRC-64/NVME checksum of content.
// Identical content always yields the identical fingerprint.
func Fingerprint(content []byte) string {
	h := crc64nvme.New()
	h.Write(content)

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return base58.Encode(sum[:])
}

// Split breaks a file name into its base name and extension (without the
// dot). Only the last extension is split off.
func Split(file string) (string, string) {
	file = path.Base(file)
	ext := path.Ext(file)
	if ext == "" || ext == file {
		return file, ""
	}
	return strings.TrimSuffix(file, ext), ext[1:]
}
