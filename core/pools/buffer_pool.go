// Package pools recycles the per-connection buffered readers and writers and
// the scratch buffers used while materializing bodies.
package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Buffer sizes
const (
	DefaultReadBufferSize  = 8 * 1024
	DefaultWriteBufferSize = 8 * 1024
)

// BufioPool hands out bufio readers and writers of a fixed size.
type BufioPool struct {
	readSize  int
	writeSize int
	readers   sync.Pool
	writers   sync.Pool

	// Statistics
	readerGets atomic.Uint64
	readerNews atomic.Uint64
	writerGets atomic.Uint64
	writerNews atomic.Uint64
}

// NewBufioPool creates a pool; non-positive sizes fall back to the defaults.
func NewBufioPool(readSize, writeSize int) *BufioPool {
	if readSize <= 0 {
		readSize = DefaultReadBufferSize
	}
	if writeSize <= 0 {
		writeSize = DefaultWriteBufferSize
	}
	return &BufioPool{readSize: readSize, writeSize: writeSize}
}

// ReadSize is the buffer size of pooled readers. Request heads larger than
// this are rejected by the parser.
func (p *BufioPool) ReadSize() int {
	return p.readSize
}

// GetReader returns a reader over r.
func (p *BufioPool) GetReader(r io.Reader) *bufio.Reader {
	p.readerGets.Add(1)
	if v := p.readers.Get(); v != nil {
		br := v.(*bufio.Reader)
		br.Reset(r)
		return br
	}
	p.readerNews.Add(1)
	return bufio.NewReaderSize(r, p.readSize)
}

// PutReader returns br to the pool. The caller must not use it afterwards.
func (p *BufioPool) PutReader(br *bufio.Reader) {
	br.Reset(nil)
	p.readers.Put(br)
}

// GetWriter returns a writer over w.
func (p *BufioPool) GetWriter(w io.Writer) *bufio.Writer {
	p.writerGets.Add(1)
	if v := p.writers.Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	p.writerNews.Add(1)
	return bufio.NewWriterSize(w, p.writeSize)
}

// PutWriter returns bw to the pool. Unflushed data is discarded.
func (p *BufioPool) PutWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	p.writers.Put(bw)
}

// Stats returns pool statistics
func (p *BufioPool) Stats() BufferStats {
	return BufferStats{
		ReaderGets: p.readerGets.Load(),
		ReaderNews: p.readerNews.Load(),
		WriterGets: p.writerGets.Load(),
		WriterNews: p.writerNews.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	ReaderGets uint64
	ReaderNews uint64
	WriterGets uint64
	WriterNews uint64
}

// HitRate is the share of gets served from the pool.
func (s BufferStats) HitRate() float64 {
	gets := s.ReaderGets + s.WriterGets
	if gets == 0 {
		return 0
	}
	return float64(gets-s.ReaderNews-s.WriterNews) / float64(gets)
}

// AcquireBuffer gets a scratch buffer. bytebufferpool calibrates its default
// size from observed usage, so callers need no size hint.
func AcquireBuffer() *bytebufferpool.ByteBuffer {
	return bytebufferpool.Get()
}

// ReleaseBuffer returns a scratch buffer. Slices of buf.B must not be kept.
func ReleaseBuffer(buf *bytebufferpool.ByteBuffer) {
	bytebufferpool.Put(buf)
}
