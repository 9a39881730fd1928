// Package chunkreader implements a lazy sequence of raw byte chunks read
// from a file, with byte/time seek and EOF signaling. Buffers are pooled so
// a long job processing a 10 GB file allocates the same handful of chunk
// buffers a 1 MB job does.
package chunkreader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/solstice-audio/waveline/internal/format"
	"github.com/solstice-audio/waveline/internal/werr"
)

// ByteChunk is one slice of a file's bytes.
type ByteChunk struct {
	Data        []byte
	StartOffset int64
	EndOffset   int64
	IsLast      bool
	IsSeekPoint bool
}

var bufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 1<<20) },
}

// Reader owns a single open file handle and, at any instant, a single
// ByteChunk buffer. It is not safe for concurrent use: a
// worker owns exactly one Reader for the duration of a job.
type Reader struct {
	f         *os.File
	size      int64
	chunkSize int
	offset    int64
	closed    bool
}

// Open opens path and sizes the reader's chunks at chunkSize bytes. Errors
// are classified as FileNotFound, PermissionDenied, or IoFailure.
func Open(path string, chunkSize int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", werr.ErrFileNotFound, path)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("%w: %s", werr.ErrPermissionDenied, path)
		default:
			return nil, fmt.Errorf("%w: opening %s: %v", werr.ErrIoFailure, path, err)
		}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", werr.ErrIoFailure, path, err)
	}
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &Reader{f: f, size: info.Size(), chunkSize: chunkSize}, nil
}

// SizeBytes is the file's total size.
func (r *Reader) SizeBytes() int64 { return r.size }

// SetChunkSize changes the granularity of subsequent ReadNext calls; used by
// the pool's adaptive chunk-sizing policy to halve chunk size
// after a recoverable chunk-too-large failure.
func (r *Reader) SetChunkSize(n int) {
	if n > 0 {
		r.chunkSize = n
	}
}

// ChunkSize returns the current read granularity.
func (r *Reader) ChunkSize() int { return r.chunkSize }

// ReadNext returns at most ChunkSize bytes starting at the current offset.
// The caller must call ReleaseChunk(chunk) once done with chunk.Data, which
// returns the backing buffer to the pool for reuse.
func (r *Reader) ReadNext() (ByteChunk, error) {
	if r.closed {
		return ByteChunk{}, fmt.Errorf("%w: reader closed", werr.ErrIoFailure)
	}
	if r.offset >= r.size {
		return ByteChunk{}, io.EOF
	}

	buf := bufPool.Get().([]byte)
	if cap(buf) < r.chunkSize {
		buf = make([]byte, r.chunkSize)
	}
	buf = buf[:r.chunkSize]
	if int64(len(buf)) > r.size-r.offset {
		buf = buf[:r.size-r.offset]
	}

	n, err := io.ReadFull(r.f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		bufPool.Put(buf[:0])
		return ByteChunk{}, fmt.Errorf("%w: reading %s at %d: %v", werr.ErrIoFailure, r.f.Name(), r.offset, err)
	}
	data := buf[:n]
	start := r.offset
	r.offset += int64(n)

	return ByteChunk{
		Data:        data,
		StartOffset: start,
		EndOffset:   r.offset,
		IsLast:      r.offset >= r.size,
	}, nil
}

// ReleaseChunk returns a chunk's backing buffer to the pool.
func (r *Reader) ReleaseChunk(c ByteChunk) {
	if c.Data != nil {
		bufPool.Put(c.Data[:0])
	}
}

// SeekToByte invalidates any buffered state and repositions the next
// ReadNext at offset.
func (r *Reader) SeekToByte(offset int64) error {
	if offset < 0 || offset > r.size {
		return fmt.Errorf("%w: seek offset %d out of range [0,%d]", werr.ErrIoFailure, offset, r.size)
	}
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking %s: %v", werr.ErrIoFailure, r.f.Name(), err)
	}
	r.offset = offset
	return nil
}

// SeekToTime asks parser to translate t into a byte offset and seeks there.
// On SeekUnsupported the caller is expected to fall back to sequential
// scanning from offset 0.
func (r *Reader) SeekToTime(t time.Duration, parser format.Parser) (format.SeekResult, error) {
	res, err := parser.TimeToByte(t)
	if err != nil {
		return format.SeekResult{}, err
	}
	if err := r.SeekToByte(res.ByteOffset); err != nil {
		return format.SeekResult{}, err
	}
	return res, nil
}

// Close releases the file handle. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}
