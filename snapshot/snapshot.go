package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/roargraph"
	"github.com/hupe1980/roargraph/blobstore"
	"github.com/hupe1980/roargraph/internal/compress"
	"github.com/hupe1980/roargraph/internal/hash"
	"github.com/hupe1980/roargraph/internal/resource"
)

const (
	// CurrentName is the pointer blob naming the latest snapshot.
	CurrentName = "CURRENT"

	// DefaultPrefix is the directory snapshots are written under.
	DefaultPrefix = "snapshots/"

	// Suffix is the extension of snapshot blobs.
	Suffix = ".rgs"

	magic         = "RGSN"
	formatVersion = uint16(1)
	headerSize    = 8
	trailerSize   = 12
)

// Compression selects the payload block compression.
type Compression = compress.Type

// Compression algorithms.
const (
	None = compress.None
	LZ4  = compress.LZ4
	ZSTD = compress.ZSTD
)

var (
	// ErrNoSnapshot is returned by Load when nothing was committed yet.
	ErrNoSnapshot = errors.New("snapshot: no snapshot committed")

	// ErrCorrupt marks a snapshot blob that fails validation. It matches
	// roargraph.ErrCorruptSnapshot.
	ErrCorrupt = fmt.Errorf("snapshot: %w", roargraph.ErrCorruptSnapshot)
)

// Options configures Save and Load.
type Options struct {
	// Prefix is prepended to snapshot names.
	// Default: DefaultPrefix.
	Prefix string

	// Compression is the block compression of the payload.
	// Default: ZSTD.
	Compression Compression

	// BlockSize is the uncompressed block size.
	// Default: compress.DefaultBlockSize.
	BlockSize int

	// IOLimitBytesPerSec throttles uploads. 0 disables throttling.
	IOLimitBytesPerSec int64

	// Retain is the number of snapshots kept after a successful Save,
	// including the new one. 0 keeps all.
	// Default: 3.
	Retain int

	// Logger receives one record per Save and Load.
	// Default: roargraph.NoopLogger().
	Logger *roargraph.Logger

	// IndexOptions are passed to roargraph.Load.
	IndexOptions []roargraph.Option
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	Prefix:      DefaultPrefix,
	Compression: ZSTD,
	BlockSize:   compress.DefaultBlockSize,
	Retain:      3,
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = roargraph.NoopLogger()
	}
	if opts.Prefix != "" && !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	return opts
}

// Info describes a snapshot blob.
type Info struct {
	// Name is the blob name within the store.
	Name string
	// Sequence orders snapshots of one store.
	Sequence uint64
	// RawBytes is the size of the index serialization.
	RawBytes int64
	// StoredBytes is the size of the blob.
	StoredBytes int64
	// Compression is the payload compression.
	Compression Compression
	// Duration is the time Save or Load took.
	Duration time.Duration
}

// Source is anything that serializes itself, such as *roargraph.Index.
type Source interface {
	WriteTo(w io.Writer) (int64, error)
}

// Save streams src into a new snapshot blob, points CURRENT at it and prunes
// snapshots beyond Options.Retain. CURRENT is only updated after the blob is
// complete, so a failed Save leaves the previous snapshot current.
func Save(ctx context.Context, store blobstore.Store, src Source, optFns ...func(o *Options)) (Info, error) {
	opts := applyOptions(optFns)
	start := time.Now()

	info, err := save(ctx, store, src, opts)
	info.Duration = time.Since(start)
	opts.Logger.LogSnapshot(ctx, "save", info.StoredBytes, err)
	return info, err
}

func save(ctx context.Context, store blobstore.Store, src Source, opts Options) (Info, error) {
	if !opts.Compression.Valid() {
		return Info{}, compress.ErrUnknownType
	}

	names, err := List(ctx, store, opts.Prefix)
	if err != nil {
		return Info{}, err
	}
	seq := uint64(1)
	if len(names) > 0 {
		last, _ := sequence(names[len(names)-1], opts.Prefix)
		seq = last + 1
	}

	info := Info{
		Name:        fmt.Sprintf("%s%020d%s", opts.Prefix, seq, Suffix),
		Sequence:    seq,
		Compression: opts.Compression,
	}

	w, err := store.Create(ctx, info.Name)
	if err != nil {
		return info, err
	}

	if err := write(ctx, w, src, opts, &info); err != nil {
		abort(ctx, store, w, info.Name)
		return info, err
	}
	if err := w.Sync(); err != nil {
		abort(ctx, store, w, info.Name)
		return info, err
	}
	if err := w.Close(); err != nil {
		_ = store.Delete(ctx, info.Name)
		return info, err
	}

	if err := store.Put(ctx, CurrentName, []byte(info.Name)); err != nil {
		_ = store.Delete(ctx, info.Name)
		return info, fmt.Errorf("snapshot: commit %s: %w", info.Name, err)
	}

	if opts.Retain > 0 {
		names = append(names, info.Name)
		for _, old := range names[:max(0, len(names)-opts.Retain)] {
			if err := store.Delete(ctx, old); err != nil {
				return info, fmt.Errorf("snapshot: prune %s: %w", old, err)
			}
		}
	}

	return info, nil
}

// write emits header, compressed payload and trailer. The trailer holds the
// raw size and a CRC32C over everything before it.
func write(ctx context.Context, w io.Writer, src Source, opts Options, info *Info) error {
	ctrl := resource.NewController(resource.Config{IOLimitBytesPerSec: opts.IOLimitBytesPerSec})
	crc := hash.NewCRC32C()
	out := &countingWriter{w: io.MultiWriter(resource.NewRateLimitedWriter(ctx, w, ctrl), crc)}

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], formatVersion)
	hdr[6] = byte(opts.Compression)
	if _, err := out.Write(hdr[:]); err != nil {
		return err
	}

	cw := compress.NewWriter(out, opts.Compression, opts.BlockSize)
	raw, err := src.WriteTo(cw)
	if err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	info.RawBytes = raw

	var tail [trailerSize]byte
	binary.LittleEndian.PutUint64(tail[0:], uint64(raw)) //nolint:gosec // non-negative
	if _, err := out.Write(tail[:8]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(tail[8:], crc.Sum32())
	if _, err := out.Write(tail[8:]); err != nil {
		return err
	}

	info.StoredBytes = out.n
	return nil
}

func abort(ctx context.Context, store blobstore.Store, w blobstore.WritableBlob, name string) {
	if a, ok := w.(interface{ Abort() error }); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
	_ = store.Delete(ctx, name)
}

// Current returns the name CURRENT points at.
func Current(ctx context.Context, store blobstore.Store) (string, error) {
	data, err := blobstore.ReadAll(ctx, store, CurrentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("%w: empty %s", ErrCorrupt, CurrentName)
	}
	return name, nil
}

// List returns the snapshot names under prefix, oldest first.
func List(ctx context.Context, store blobstore.Store, prefix string) ([]string, error) {
	all, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := all[:0]
	for _, name := range all {
		if _, ok := sequence(name, prefix); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// sequence parses the zero-padded sequence number of a snapshot name. The
// padding makes lexical order match numeric order.
func sequence(name, prefix string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, Suffix)
	if !ok || len(rest) != 20 {
		return 0, false
	}
	seq, err := strconv.ParseUint(rest, 10, 64)
	return seq, err == nil
}

// Load opens the snapshot CURRENT points at.
func Load[K comparable](ctx context.Context, store blobstore.Store, optFns ...func(o *Options)) (*roargraph.Index[K], Info, error) {
	opts := applyOptions(optFns)

	name, err := Current(ctx, store)
	if err != nil {
		return nil, Info{}, err
	}
	return load[K](ctx, store, name, opts)
}

// LoadName opens a specific snapshot, e.g. one returned by List.
func LoadName[K comparable](ctx context.Context, store blobstore.Store, name string, optFns ...func(o *Options)) (*roargraph.Index[K], Info, error) {
	return load[K](ctx, store, name, applyOptions(optFns))
}

func load[K comparable](ctx context.Context, store blobstore.Store, name string, opts Options) (*roargraph.Index[K], Info, error) {
	start := time.Now()
	idx, info, err := read[K](ctx, store, name, opts)
	info.Duration = time.Since(start)
	opts.Logger.LogSnapshot(ctx, "load", info.StoredBytes, err)
	return idx, info, err
}

func read[K comparable](ctx context.Context, store blobstore.Store, name string, opts Options) (*roargraph.Index[K], Info, error) {
	info := Info{Name: name}
	info.Sequence, _ = sequence(name, opts.Prefix)

	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, info, err
	}
	info.StoredBytes = int64(len(data))

	body, typ, raw, err := verify(data)
	if err != nil {
		return nil, info, err
	}
	info.Compression = typ
	info.RawBytes = raw

	payload, err := compress.Decompress(body, typ)
	if err != nil {
		return nil, info, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if int64(len(payload)) != raw {
		return nil, info, fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorrupt, len(payload), raw)
	}

	idx, err := roargraph.Load[K](bytes.NewReader(payload), opts.IndexOptions...)
	if err != nil {
		return nil, info, err
	}
	return idx, info, nil
}

// verify checks framing and checksum and returns the compressed body.
func verify(data []byte) ([]byte, compress.Type, int64, error) {
	if len(data) < headerSize+trailerSize {
		return nil, 0, 0, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if string(data[:4]) != magic {
		return nil, 0, 0, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != formatVersion {
		return nil, 0, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	typ := compress.Type(data[6])
	if !typ.Valid() {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrCorrupt, compress.ErrUnknownType)
	}

	end := len(data) - 4
	if got, want := hash.CRC32C(data[:end]), binary.LittleEndian.Uint32(data[end:]); got != want {
		return nil, 0, 0, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	raw := binary.LittleEndian.Uint64(data[end-8:])
	if raw > uint64(1)<<48 {
		return nil, 0, 0, fmt.Errorf("%w: raw size %d", ErrCorrupt, raw)
	}
	return data[headerSize : end-8], typ, int64(raw), nil //nolint:gosec // bounded above
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
