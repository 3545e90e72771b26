package storage

import (
	"context"
	"io"
)

// copyBufferSize matches io.Copy's internal buffer.
const copyBufferSize = 32 * 1024

// Copy copies from src to dst until EOF, an error, or ctx is done. It
// returns the number of bytes written. Cancellation surfaces as ctx.Err().
// Bytes already written are left in dst.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(dst, &contextReader{ctx: ctx, r: src}, make([]byte, copyBufferSize))
}

// contextReader fails reads once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
