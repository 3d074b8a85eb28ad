// Package ext4fs reads ext2/ext3/ext4 filesystem images without
// assuming an operating system: the only capability it needs from its
// caller is a way to read bytes at an absolute offset (Reader). It
// never writes, never repairs corruption, and never trusts on-disk
// structures further than it has to: every failure mode surfaces as a
// typed *Error rather than a panic.
package ext4fs

import (
	"io"

	"github.com/gbuilds/ext4fs/disklayout"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handle is an opened, read-only view of an ext2/3/4 filesystem image.
// A Handle is safe for concurrent use: every read-only operation may
// be called from multiple goroutines at once.
type Handle struct {
	fs     *fs
	sb     *disklayout.SuperBlock
	log    *logrus.Logger
	jrnl   *journalInfo
}

// Load opens a filesystem image via r. r must support reading from any
// absolute byte offset; a *bytes.Reader, an *os.File, or a
// network-backed block device reader all work.
func Load(r Reader, opts ...Option) (*Handle, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	sb, err := loadSuperblock(r)
	if err != nil {
		return nil, err
	}

	if sb.FeatureIncompat().Has(disklayout.IncompatMetaBG) {
		cfg.logger.Warn("ext4fs: meta_bg present, relying on flex_bg group-descriptor placement")
	}
	if sb.FeatureIncompat().Has(disklayout.IncompatDirData) {
		cfg.logger.Warn("ext4fs: dirdata feature present, ignoring per-dirent extra data")
	}

	var ov *overlay
	var jrnl *journalInfo
	if cfg.skipJournal {
		ov = newOverlay()
		jrnl = &journalInfo{}
	} else {
		ov, jrnl, err = replayJournal(r, sb, cfg.logger)
		if err != nil {
			return nil, err
		}
		if jrnl.replayed {
			cfg.logger.WithField("blocks", jrnl.blocks).Info("ext4fs: replayed journal")
		}
	}

	cache := newBlockCache(r, blockSizeOf(sb), cfg.cacheBlocks, ov)
	gdt, err := loadGroupDescTable(cache, sb)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		fs:   &fs{cache: cache, sb: sb, gdt: gdt, jrnl: jrnl},
		sb:   sb,
		log:  cfg.logger,
		jrnl: jrnl,
	}
	return h, nil
}

// Label returns the filesystem's volume name, or the empty string if
// none was set.
func (h *Handle) Label() string { return h.sb.VolumeName() }

// UUID returns the filesystem's UUID.
func (h *Handle) UUID() uuid.UUID {
	raw := h.sb.UUID()
	return uuid.UUID(raw)
}

// JournalReplayed reports whether this Load call found and replayed an
// unclean-unmount journal.
func (h *Handle) JournalReplayed() bool { return h.jrnl.replayed }

func requireAbsolute(path string) error {
	if len(path) == 0 || path[0] != '/' {
		return newErr(KindMalformedPath, "path must be absolute")
	}
	return nil
}

// Exists reports whether path resolves to an inode. It never returns
// an error: a resolution failure (bad path, missing component,
// corruption along the way) is reported as false.
func (h *Handle) Exists(path string) bool {
	if err := requireAbsolute(path); err != nil {
		return false
	}
	_, err := h.fs.resolvePath(path)
	return err == nil
}

// Metadata describes a resolved file or directory.
type Metadata struct {
	Inode      uint32
	Mode       uint16
	Size       uint64
	UID        uint32
	GID        uint32
	LinksCount uint16
	FileType   disklayout.FileType
}

// Metadata resolves path and returns its inode metadata.
func (h *Handle) Metadata(path string) (Metadata, error) {
	if err := requireAbsolute(path); err != nil {
		return Metadata{}, err
	}
	r, err := h.fs.resolvePath(path)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Inode:      r.ino,
		Mode:       r.node.Mode(),
		Size:       r.node.Size(),
		UID:        r.node.UID(),
		GID:        r.node.GID(),
		LinksCount: r.node.LinksCount(),
		FileType:   disklayout.FileTypeFromMode(r.node.Mode()),
	}, nil
}

// Read returns the entire contents of the regular file at path.
func (h *Handle) Read(path string) ([]byte, error) {
	if err := requireAbsolute(path); err != nil {
		return nil, err
	}
	r, err := h.fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if r.node.IsDir() {
		return nil, newErr(KindIsADirectory, "")
	}
	if !r.node.IsRegular() {
		return nil, incompatibleErr("not a regular file")
	}
	return h.fs.readFileRange(r.node, 0, r.node.Size())
}

// ReadToString returns the entire contents of the regular file at path
// decoded as UTF-8 text, performing no validation of the bytes beyond
// what Go's string conversion implies.
func (h *Handle) ReadToString(path string) (string, error) {
	b, err := h.Read(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadDir returns every entry of the directory at path, in on-disk
// order.
func (h *Handle) ReadDir(path string) ([]DirEntry, error) {
	if err := requireAbsolute(path); err != nil {
		return nil, err
	}
	r, err := h.fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if !r.node.IsDir() {
		return nil, newErr(KindNotADirectory, "")
	}
	return h.fs.listDirectory(r.node)
}

// File is a random-access, read-only view of a single regular file's
// content, independent of the path used to open it.
type File struct {
	h    *Handle
	node *inode
	pos  int64
}

// Open resolves path and returns a random-access reader over its
// content.
func (h *Handle) Open(path string) (*File, error) {
	if err := requireAbsolute(path); err != nil {
		return nil, err
	}
	r, err := h.fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if r.node.IsDir() {
		return nil, newErr(KindIsADirectory, "")
	}
	return &File{h: h, node: r.node}, nil
}

// Len returns the file's total size in bytes.
func (f *File) Len() int64 { return int64(f.node.Size()) }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newErr(KindIO, "negative offset")
	}
	size := int64(f.node.Size())
	if off >= size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > size {
		length = size - off
	}
	data, err := f.h.fs.readFileRange(f.node, uint64(off), uint64(length))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = f.pos
	case 2:
		base = int64(f.node.Size())
	default:
		return 0, newErr(KindIO, "invalid whence")
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, newErr(KindIO, "negative seek result")
	}
	f.pos = newPos
	return newPos, nil
}

// Read implements io.Reader, advancing the file's internal cursor.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}
