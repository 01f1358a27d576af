package grpc

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/grpc/encoding"
)

// GzipCompressor is the grpc-encoding name of the gzip compressor.
const GzipCompressor = "gzip"

func init() {
	c := &gzipCompressor{}
	c.writers.New = func() any {
		return gzip.NewWriter(io.Discard)
	}
	encoding.RegisterCompressor(c)
}

// gzipCompressor pools klauspost gzip writers and readers. Segments are
// repetitive protobuf and compress well, so the collector link benefits most.
type gzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

type pooledWriter struct {
	*gzip.Writer
	pool *sync.Pool
}

func (w *pooledWriter) Close() error {
	defer w.pool.Put(w.Writer)
	return w.Writer.Close()
}

func (c *gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zw := c.writers.Get().(*gzip.Writer)
	zw.Reset(w)
	return &pooledWriter{Writer: zw, pool: &c.writers}, nil
}

type pooledReader struct {
	*gzip.Reader
	pool *sync.Pool
}

func (r *pooledReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err == io.EOF {
		r.pool.Put(r.Reader)
	}
	return n, err
}

func (c *gzipCompressor) Decompress(r io.Reader) (io.Reader, error) {
	zr, ok := c.readers.Get().(*gzip.Reader)
	if !ok {
		newReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &pooledReader{Reader: newReader, pool: &c.readers}, nil
	}
	if err := zr.Reset(r); err != nil {
		c.readers.Put(zr)
		return nil, err
	}
	return &pooledReader{Reader: zr, pool: &c.readers}, nil
}

func (c *gzipCompressor) Name() string {
	return GzipCompressor
}
