package store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// memberName maps a path key to a zip member name.
func memberName(key string) string {
	return strings.Trim(key, "/")
}

// Writer creates a store file. Tables go to a temporary file next to the
// target that only replaces it on Commit.
//
//	w, err := store.Create(path, codec)
//	if err != nil { ... }
//	defer w.Close()
//	... w.Put(key, table) ...
//	return w.Commit()
type Writer struct {
	path  string
	tmp   string
	f     *os.File
	zw    *zip.Writer
	codec *Codec
	keys  map[string]struct{}
	done  bool
}

// Create opens a new store for writing at path.
func Create(path string, codec *Codec) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nferrors.IO(err, "create directory", dir)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return nil, nferrors.IO(err, "create store", tmp)
	}

	return &Writer{
		path:  path,
		tmp:   tmp,
		f:     f,
		zw:    zip.NewWriter(f),
		codec: codec,
		keys:  make(map[string]struct{}),
	}, nil
}

// Put encodes t under key. Parquet pages are already compressed, so the
// member is stored without further compression.
func (w *Writer) Put(key Key, t *electric.Table) error {
	if w.done {
		return nferrors.New(nferrors.CodeIO, "store already closed").WithContext("path", w.path)
	}
	if err := key.Series.Validate(); err != nil {
		return err
	}

	name := memberName(key.String())
	if _, dup := w.keys[name]; dup {
		return nferrors.MalformedKey(key.String(), "duplicate key")
	}

	entry, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Store,
	})
	if err != nil {
		return nferrors.IO(err, "create store member", w.tmp).WithContext("key", key.String())
	}
	if err := w.codec.Encode(entry, t); err != nil {
		if nferrors.GetCode(err) != nferrors.CodeUnknown {
			return nferrors.Wrap(err, nferrors.GetCode(err), "encode table").WithContext("key", key.String())
		}
		return nferrors.IO(err, "encode table", w.tmp).WithContext("key", key.String())
	}
	w.keys[name] = struct{}{}
	return nil
}

// Commit finishes the store and moves it into place.
func (w *Writer) Commit() error {
	if w.done {
		return nferrors.New(nferrors.CodeIO, "store already closed").WithContext("path", w.path)
	}
	w.done = true

	if err := w.zw.Close(); err != nil {
		w.abort()
		return nferrors.IO(err, "finish store", w.tmp)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmp)
		return nferrors.IO(err, "close store", w.tmp)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.Remove(w.tmp)
		return nferrors.IO(err, "move store into place", w.path)
	}
	return nil
}

// Close releases the handle. Without a prior Commit the temporary file is
// removed and any existing store at the target path is left untouched.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.abort()
	return nil
}

func (w *Writer) abort() {
	w.f.Close()
	os.Remove(w.tmp)
}

// Reader reads a store file.
type Reader struct {
	path    string
	zr      *zip.ReadCloser
	codec   *Codec
	members map[string]*zip.File
}

// Open opens the store at path. A missing file is a NotFound error.
func Open(path string, codec *Codec) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nferrors.NotFound("store", path)
		}
		return nil, nferrors.IO(err, "stat store", path)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nferrors.IO(err, "open store", path)
	}

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members[memberName(f.Name)] = f
	}

	return &Reader{path: path, zr: zr, codec: codec, members: members}, nil
}

// Keys returns every path key in the store, sorted, with a leading slash.
func (r *Reader) Keys() []string {
	keys := make([]string, 0, len(r.members))
	for name := range r.members {
		keys = append(keys, "/"+name)
	}
	sort.Strings(keys)
	return keys
}

// Get decodes the table stored under key.
func (r *Reader) Get(ctx context.Context, key string) (*electric.Table, error) {
	f, ok := r.members[memberName(key)]
	if !ok {
		return nil, nferrors.NotFound("key", r.path).WithContext("key", key)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, nferrors.IO(err, "open store member", r.path).WithContext("key", key)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, nferrors.IO(err, "read store member", r.path).WithContext("key", key)
	}

	t, err := r.codec.Decode(ctx, buf.Bytes())
	if err != nil {
		code := nferrors.GetCode(err)
		if code == nferrors.CodeUnknown {
			code = nferrors.CodeIO
		}
		return nil, nferrors.Wrap(err, code, "decode table").WithContext("key", key)
	}
	return t, nil
}

// Close releases the file handle.
func (r *Reader) Close() error {
	return r.zr.Close()
}
