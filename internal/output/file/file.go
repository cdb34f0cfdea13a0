package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/crimson-sun/pooler/internal/output"
)

const defaultBufSize = 256 * 1024

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize caps the active file at bytes. A record that would push it
// past the cap starts a new shard. 0 (default) never shards.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the write buffer size.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output appends embedding records as NDJSON to path. With a size cap the
// active file is sealed into numbered shards next to it: embeddings.jsonl
// becomes embeddings.1.jsonl, then embeddings.2.jsonl, and so on. Shards
// keep the extension so each one is a complete NDJSON file on its own.
type Output struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *bufio.Writer
	size    int64
	shard   int
	maxSize int64
	bufSize int
}

// New opens path for appending. Numbering continues after any shards
// already on disk.
func New(path string, opts ...Option) (*Output, error) {
	o := &Output{path: path, bufSize: defaultBufSize}
	for _, opt := range opts {
		opt(o)
	}
	shard, err := lastShard(path)
	if err != nil {
		return nil, err
	}
	o.shard = shard
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends rec as one line. A record is never split across shards.
func (o *Output) Write(_ context.Context, rec output.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("file output: encode record %d: %w", rec.Index, err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.size > 0 && o.size+int64(len(line)) > o.maxSize {
		if err := o.seal(); err != nil {
			return fmt.Errorf("file output: seal shard: %w", err)
		}
	}
	n, err := o.w.Write(line)
	o.size += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write record %d: %w", rec.Index, err)
	}
	return nil
}

// Close flushes buffered records and closes the active file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	flushErr := o.w.Flush()
	closeErr := o.f.Close()
	if flushErr != nil {
		return fmt.Errorf("file output: flush: %w", flushErr)
	}
	return closeErr
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f, o.w, o.size = f, bufio.NewWriterSize(f, o.bufSize), fi.Size()
	return nil
}

// seal moves the active file to the next shard name and reopens path empty.
func (o *Output) seal() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	o.shard++
	if err := os.Rename(o.path, shardPath(o.path, o.shard)); err != nil {
		return err
	}
	return o.open()
}

// shardPath inserts n before the extension: out.jsonl, 3 -> out.3.jsonl.
func shardPath(path string, n int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + strconv.Itoa(n) + ext
}

// lastShard returns the highest shard number present for path, or 0.
func lastShard(path string) (int, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	matches, err := filepath.Glob(escapeGlob(stem) + ".*" + escapeGlob(ext))
	if err != nil {
		return 0, fmt.Errorf("file output: list shards: %w", err)
	}
	last := 0
	for _, m := range matches {
		mid := strings.TrimSuffix(strings.TrimPrefix(m, stem+"."), ext)
		if n, err := strconv.Atoi(mid); err == nil && n > last {
			last = n
		}
	}
	return last, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
