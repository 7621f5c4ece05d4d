package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unsafe"
)

// MaxSliceLen bounds the element count of a single slice read from untrusted
// input.
const MaxSliceLen = math.MaxInt / 8

// Writer writes index sections in little-endian binary format.
// Every byte passes through a running CRC32C checksum; Finish appends it.
type Writer struct {
	cw      *ChecksumWriter
	scratch [8]byte
}

// NewWriter creates a new binary writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: NewChecksumWriter(w)}
}

// Written returns the number of bytes written so far.
func (bw *Writer) Written() int64 {
	return bw.cw.Written()
}

// WriteHeader writes the file header, stamping magic and version.
func (bw *Writer) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(bw.cw, binary.LittleEndian, header)
}

// WriteSection writes a section tag.
func (bw *Writer) WriteSection(tag uint32) error {
	return bw.WriteUint32(tag)
}

// WriteUint8 writes a single byte.
func (bw *Writer) WriteUint8(v uint8) error {
	bw.scratch[0] = v
	_, err := bw.cw.Write(bw.scratch[:1])
	return err
}

// WriteUint32 writes a uint32.
func (bw *Writer) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(bw.scratch[:4], v)
	_, err := bw.cw.Write(bw.scratch[:4])
	return err
}

// WriteUint64 writes a uint64.
func (bw *Writer) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(bw.scratch[:8], v)
	_, err := bw.cw.Write(bw.scratch[:8])
	return err
}

// WriteFloat32 writes a float32.
func (bw *Writer) WriteFloat32(v float32) error {
	return bw.WriteUint32(math.Float32bits(v))
}

// WriteBytes writes a length-prefixed byte slice.
func (bw *Writer) WriteBytes(b []byte) error {
	if err := bw.WriteUint64(uint64(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := bw.cw.Write(b)
	return err
}

// WriteUint8Slice writes a uint8 slice as raw bytes. The caller records the length.
func (bw *Writer) WriteUint8Slice(b []uint8) error {
	if len(b) == 0 {
		return nil
	}
	_, err := bw.cw.Write(b)
	return err
}

// WriteFloat32Slice writes a float32 slice as raw bytes (zero-copy).
// Safety: validates alignment before the unsafe conversion.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	if err := checkAligned(vec); err != nil {
		return err
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4) //nolint:gosec // aligned above
	_, err := bw.cw.Write(byteSlice)
	return err
}

// WriteUint32Slice writes a uint32 slice as raw bytes.
func (bw *Writer) WriteUint32Slice(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}
	if err := checkAligned(slice); err != nil {
		return err
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4) //nolint:gosec // aligned above
	_, err := bw.cw.Write(byteSlice)
	return err
}

// WriteUint64Slice writes a uint64 slice as raw bytes.
func (bw *Writer) WriteUint64Slice(slice []uint64) error {
	if len(slice) == 0 {
		return nil
	}
	if err := checkAligned(slice); err != nil {
		return err
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*8) //nolint:gosec // aligned above
	_, err := bw.cw.Write(byteSlice)
	return err
}

// Finish writes the CRC32C trailer over everything written so far.
func (bw *Writer) Finish() error {
	sum := bw.cw.Sum()
	binary.LittleEndian.PutUint32(bw.scratch[:4], sum)
	_, err := bw.cw.w.Write(bw.scratch[:4])
	return err
}

// Reader reads index sections written by Writer.
type Reader struct {
	cr      *ChecksumReader
	size    int64 // payload size if known, -1 otherwise
	scratch [8]byte
}

// NewReader creates a new binary reader over a stream of unknown size.
func NewReader(r io.Reader) *Reader {
	return &Reader{cr: NewChecksumReader(r), size: -1}
}

// NewBytesReader creates a reader over a complete blob, trailer included.
// Slice lengths are checked against the remaining payload before allocating.
func NewBytesReader(data []byte) *Reader {
	return &Reader{
		cr:   NewChecksumReader(bytes.NewReader(data)),
		size: max(int64(len(data))-4, 0),
	}
}

// VerifyChecksum checks the CRC32C trailer of a complete blob without
// parsing it.
func VerifyChecksum(data []byte) error {
	if len(data) < 4 {
		return ErrTruncated
	}
	body := data[:len(data)-4]
	expected := binary.LittleEndian.Uint32(data[len(data)-4:])
	cw := NewChecksumWriter(io.Discard)
	_, _ = cw.Write(body)
	if actual := cw.Sum(); actual != expected {
		return &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// Consumed returns the number of bytes read so far.
func (br *Reader) Consumed() int64 {
	return br.cr.Consumed()
}

// ReadHeader reads and validates the file header.
func (br *Reader) ReadHeader() (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(br.cr, binary.LittleEndian, &header); err != nil {
		return nil, wrapEOF(err)
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	return &header, nil
}

// ExpectSection reads a section tag and checks it.
func (br *Reader) ExpectSection(tag uint32) error {
	got, err := br.ReadUint32()
	if err != nil {
		return err
	}
	if got != tag {
		return &SectionError{Expected: tag, Actual: got}
	}
	return nil
}

func (br *Reader) fill(n int) ([]byte, error) {
	if _, err := io.ReadFull(br.cr, br.scratch[:n]); err != nil {
		return nil, wrapEOF(err)
	}
	return br.scratch[:n], nil
}

// ReadUint8 reads a single byte.
func (br *Reader) ReadUint8() (uint8, error) {
	b, err := br.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads a uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	b, err := br.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	b, err := br.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFloat32 reads a float32.
func (br *Reader) ReadFloat32() (float32, error) {
	v, err := br.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadBytes reads a length-prefixed byte slice of at most limit bytes.
func (br *Reader) ReadBytes(limit int) ([]byte, error) {
	n, err := br.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	if err := br.checkCount(int(n), 1); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br.cr, b); err != nil {
		return nil, wrapEOF(err)
	}
	return b, nil
}

// ReadUint8Slice reads count raw bytes.
func (br *Reader) ReadUint8Slice(count int) ([]uint8, error) {
	if err := br.checkCount(count, 1); err != nil || count == 0 {
		return nil, err
	}
	b := make([]uint8, count)
	if _, err := io.ReadFull(br.cr, b); err != nil {
		return nil, wrapEOF(err)
	}
	return b, nil
}

// ReadFloat32Slice reads count float32 values.
func (br *Reader) ReadFloat32Slice(count int) ([]float32, error) {
	if err := br.checkCount(count, 4); err != nil || count == 0 {
		return nil, err
	}
	vec := make([]float32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4) //nolint:gosec // freshly allocated
	if _, err := io.ReadFull(br.cr, byteSlice); err != nil {
		return nil, wrapEOF(err)
	}
	return vec, nil
}

// ReadUint32Slice reads count uint32 values.
func (br *Reader) ReadUint32Slice(count int) ([]uint32, error) {
	if err := br.checkCount(count, 4); err != nil || count == 0 {
		return nil, err
	}
	slice := make([]uint32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4) //nolint:gosec // freshly allocated
	if _, err := io.ReadFull(br.cr, byteSlice); err != nil {
		return nil, wrapEOF(err)
	}
	return slice, nil
}

// ReadUint64Slice reads count uint64 values.
func (br *Reader) ReadUint64Slice(count int) ([]uint64, error) {
	if err := br.checkCount(count, 8); err != nil || count == 0 {
		return nil, err
	}
	slice := make([]uint64, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*8) //nolint:gosec // freshly allocated
	if _, err := io.ReadFull(br.cr, byteSlice); err != nil {
		return nil, wrapEOF(err)
	}
	return slice, nil
}

// Verify reads the CRC32C trailer and compares it with the checksum of
// everything read so far.
func (br *Reader) Verify() error {
	actual := br.cr.Sum()
	if _, err := io.ReadFull(br.cr.r, br.scratch[:4]); err != nil {
		return wrapEOF(err)
	}
	expected := binary.LittleEndian.Uint32(br.scratch[:4])
	if expected != actual {
		return &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

func (br *Reader) checkCount(count, elemSize int) error {
	if count < 0 || count > MaxSliceLen {
		return fmt.Errorf("%w: %d elements", ErrTooLarge, count)
	}
	if br.size >= 0 && int64(count)*int64(elemSize) > br.size-br.cr.Consumed() {
		return fmt.Errorf("%w: %d elements exceed remaining input", ErrTruncated, count)
	}
	return nil
}

func wrapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
