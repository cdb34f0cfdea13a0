package pooling

import (
	"fmt"
	"os"
)

// RefKind tags the variant held by a ModelRef.
type RefKind int

const (
	// Remote is a model identifier on the hub, e.g. "sentence-transformers/all-MiniLM-L6-v2".
	Remote RefKind = iota
	// LocalFile is a path to a single model file on local storage.
	LocalFile
	// LocalDir is a path to a model directory on local storage.
	LocalDir
	// RawBytes is serialized model content held in memory.
	RawBytes
)

func (k RefKind) String() string {
	switch k {
	case LocalFile:
		return "file"
	case LocalDir:
		return "dir"
	case RawBytes:
		return "bytes"
	default:
		return "remote"
	}
}

// ModelRef identifies the model a pooling strategy is built for. The kind is
// decided once, when the reference is created.
type ModelRef struct {
	kind RefKind
	path string
	data []byte
}

// stat is swapped in tests.
var stat = os.Stat

// ParseRef classifies s against local storage: an existing regular file is
// LocalFile, an existing directory is LocalDir, anything else is Remote.
func ParseRef(s string) ModelRef {
	fi, err := stat(s)
	switch {
	case err != nil:
		return ModelRef{kind: Remote, path: s}
	case fi.IsDir():
		return ModelRef{kind: LocalDir, path: s}
	default:
		return ModelRef{kind: LocalFile, path: s}
	}
}

// RemoteRef returns a Remote reference without consulting local storage.
func RemoteRef(id string) ModelRef {
	return ModelRef{kind: Remote, path: id}
}

// BytesRef wraps in-memory model content.
func BytesRef(b []byte) ModelRef {
	return ModelRef{kind: RawBytes, data: b}
}

// Kind returns the variant tag.
func (r ModelRef) Kind() RefKind { return r.kind }

// Path returns the identifier or filesystem path. Empty for RawBytes.
func (r ModelRef) Path() string { return r.path }

// Bytes returns the in-memory content. Nil unless Kind is RawBytes.
func (r ModelRef) Bytes() []byte { return r.data }

// IsLocal reports whether r already lives on this machine.
func (r ModelRef) IsLocal() bool { return r.kind != Remote }

func (r ModelRef) String() string {
	if r.kind == RawBytes {
		return fmt.Sprintf("bytes(%d)", len(r.data))
	}
	return r.path
}
