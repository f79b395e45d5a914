// Package output persists split results. The filesystem writer encodes each
// result as XLSX or CSV and publishes it with a same-directory temp file and
// rename, so readers never observe a partially written output.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eliaszeru/Excel-splitter/dataset"
)

// ErrPathInvalid is returned for a name that does not map to a file inside
// the output directory
var ErrPathInvalid = errors.New("invalid output path")

// Reference locates a written output for clients, e.g. a download URL
type Reference string

// Writer persists one named output. Names include the extension, which
// selects the encoding.
type Writer interface {
	Write(ctx context.Context, name string, columns []string, rows []dataset.Row) (Reference, error)
}

// WriteError reports a failed output write
type WriteError struct {
	Name string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Name, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Options configures FS
type Options struct {
	// OutputDir is the directory outputs are written to (required)
	OutputDir string
	// URLPrefix is prepended to the escaped file name to form a Reference
	URLPrefix string
	// PermFile/PermDir default to 0644/0755 when zero
	PermFile os.FileMode
	PermDir  os.FileMode
}

// FS writes outputs as flat files under one directory. Scope derives writers
// for subdirectories that share the parent's write locks.
type FS struct {
	root   string
	prefix string
	permF  os.FileMode
	permD  os.FileMode
	locks  *lockTable
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex // file path -> writer lock
}

var _ Writer = (*FS)(nil)

// New creates a filesystem writer
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required: %w", os.ErrInvalid)
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	return &FS{
		root:   opts.OutputDir,
		prefix: opts.URLPrefix,
		permF:  pf,
		permD:  pd,
		locks:  &lockTable{locks: make(map[string]*sync.Mutex)},
	}, nil
}

// Scope returns a writer for the subdirectory name, whose references carry
// name as an extra path segment. Outputs of different scopes never replace
// each other.
func (w *FS) Scope(name string) (*FS, error) {
	dir, err := w.mapPath(name)
	if err != nil {
		return nil, err
	}
	return &FS{
		root:   dir,
		prefix: w.prefix + url.PathEscape(name) + "/",
		permF:  w.permF,
		permD:  w.permD,
		locks:  w.locks,
	}, nil
}

// Dir returns the output directory
func (w *FS) Dir() string {
	return w.root
}

// Write encodes rows under columns into name and returns its reference.
// An existing file with the same name is replaced.
func (w *FS) Write(ctx context.Context, name string, columns []string, rows []dataset.Row) (Reference, error) {
	ref, err := w.write(ctx, name, columns, rows)
	if err != nil {
		return "", &WriteError{Name: name, Err: err}
	}
	return ref, nil
}

func (w *FS) write(ctx context.Context, name string, columns []string, rows []dataset.Row) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest, err := w.mapPath(name)
	if err != nil {
		return "", err
	}
	enc := encoderFor(dest)

	if err := os.MkdirAll(w.root, w.permD); err != nil {
		return "", err
	}

	lock := w.locks.lockFor(dest)
	lock.Lock()
	defer lock.Unlock()

	if err := w.writeAtomic(ctx, dest, func(out io.Writer) error {
		return enc(ctx, out, columns, rows)
	}); err != nil {
		return "", err
	}

	return w.Reference(filepath.Base(dest)), nil
}

// Reference returns the client-facing reference for a file name
func (w *FS) Reference(name string) Reference {
	return Reference(w.prefix + url.PathEscape(name))
}

// Path returns the on-disk path of an existing output
func (w *FS) Path(name string) (string, error) {
	p, err := w.mapPath(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return p, nil
}

// Remove deletes an output. Removing a missing output is not an error.
func (w *FS) Remove(name string) error {
	p, err := w.mapPath(name)
	if err != nil {
		return err
	}
	lock := w.locks.lockFor(p)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// mapPath maps a bare file name into root. Names carrying any directory
// component are rejected rather than flattened.
func (w *FS) mapPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", ErrPathInvalid
	}
	if strings.HasPrefix(name, ".tmp-") || filepath.VolumeName(name) != "" {
		return "", ErrPathInvalid
	}
	return filepath.Join(w.root, name), nil
}

// RemoveAll deletes the output directory and everything written to it
func (w *FS) RemoveAll() error {
	return os.RemoveAll(w.root)
}

func (t *lockTable) lockFor(path string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[path]
	if !ok {
		l = &sync.Mutex{}
		t.locks[path] = l
	}
	return l
}

func (w *FS) writeAtomic(ctx context.Context, dest string, encode func(io.Writer) error) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	if err := encode(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
