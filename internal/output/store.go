package output

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/forPelevin/ytscribe/internal/domain/docname"
	"github.com/forPelevin/ytscribe/internal/types"
)

const lockFileName = ".ytscribe.lock"

// Store lays out transcript documents under root/<channel key>/.
type Store struct {
	root   string
	naming docname.Naming
}

func NewStore(root string, naming docname.Naming) Store {
	if root == "" {
		root = "transcripts"
	}
	if naming == "" {
		naming = docname.NamingID
	}
	return Store{root: root, naming: naming}
}

func (s Store) Root() string { return s.root }

func (s Store) Dir(channelKey string) string {
	return filepath.Join(s.root, channelKey)
}

func (s Store) EnsureDir(channelKey string) error {
	dir := s.Dir(channelKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create channel dir: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory lock on the channel directory. The
// returned func releases it.
func (s Store) Lock(channelKey string) (func() error, error) {
	if err := s.EnsureDir(channelKey); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir(channelKey), lockFileName)
	lk := flock.New(path)
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another run is already writing to %s", s.Dir(channelKey))
	}
	return lk.Unlock, nil
}

func (s Store) FileName(v types.Video) (string, error) {
	return docname.FileName(v, s.naming)
}

// Exists reports whether the final document for v is present. Partial
// documents do not count.
func (s Store) Exists(channelKey string, v types.Video) (bool, error) {
	name, err := s.FileName(v)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.Dir(channelKey), name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Create starts a document for v. Nothing touches the disk until the first
// Append or Commit; a stale partial file from an interrupted run is
// truncated at that point.
func (s Store) Create(channelKey string, v types.Video) (*Document, error) {
	name, err := s.FileName(v)
	if err != nil {
		return nil, err
	}
	final := filepath.Join(s.Dir(channelKey), name)
	return &Document{video: v, final: final, partial: final + docname.PartialExt}, nil
}

// Document is an append-only transcript file written under a .partial name
// and renamed into place on Commit.
type Document struct {
	video   types.Video
	final   string
	partial string

	f       *os.File
	w       *bufio.Writer
	written int
}

func (d *Document) Path() string { return d.final }

func (d *Document) open() error {
	if d.f != nil {
		return nil
	}
	f, err := os.OpenFile(d.partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	d.f = f
	d.w = bufio.NewWriter(f)
	if _, err := fmt.Fprintf(d.w, "Title: %s\nYoutube URL: %s\n", d.video.Title, d.video.URL()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Append writes one reformatted chunk followed by a newline and flushes it
// to the file before returning.
func (d *Document) Append(text string) error {
	if err := d.open(); err != nil {
		return err
	}
	if _, err := d.w.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("flush chunk: %w", err)
	}
	d.written++
	return nil
}

// Written is the number of chunks appended so far.
func (d *Document) Written() int { return d.written }

// Commit syncs the document and moves it to its final name. A document with
// no chunks still gets its header.
func (d *Document) Commit() error {
	if err := d.open(); err != nil {
		return err
	}
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("flush document: %w", err)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("sync document: %w", err)
	}
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	d.f = nil
	if err := os.Rename(d.partial, d.final); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// Close releases the file without committing. The partial file stays on
// disk and is redone by the next run.
func (d *Document) Close() error {
	if d.f == nil {
		return nil
	}
	_ = d.w.Flush()
	err := d.f.Close()
	d.f = nil
	return err
}
