package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

const defaultProgressStep = 1 << 20

// ProgressFunc receives the running byte count of an upload.
type ProgressFunc func(bytesRead int64)

// ReadOption tunes ReadAll.
type ReadOption func(*uploadReader)

// WithProgress calls fn each time at least step more bytes have arrived,
// and once more with the final count. step <= 0 reports every megabyte.
func WithProgress(step int64, fn ProgressFunc) ReadOption {
	return func(u *uploadReader) {
		if step <= 0 {
			step = defaultProgressStep
		}
		u.step = step
		u.onProgress = fn
	}
}

// ReadAll reads r fully, failing with ErrFileTooLarge past maxBytes
// (maxBytes <= 0 means no limit). The whole file is held in memory; rows
// are windowed later for display only.
func ReadAll(ctx context.Context, r io.Reader, maxBytes int64, opts ...ReadOption) ([]byte, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	u := &uploadReader{ctx: ctx, r: r}
	for _, opt := range opts {
		opt(u)
	}

	data, err := io.ReadAll(u)
	u.report()
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}

// uploadReader stops between chunks once ctx is done and counts what it
// hands out.
type uploadReader struct {
	ctx context.Context
	r   io.Reader

	read       int64
	reported   int64
	step       int64
	onProgress ProgressFunc
}

func (u *uploadReader) Read(p []byte) (int, error) {
	if err := u.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := u.r.Read(p)
	u.read += int64(n)
	if u.onProgress != nil && u.read-u.reported >= u.step {
		u.report()
	}
	return n, err
}

func (u *uploadReader) report() {
	if u.onProgress == nil || u.read == u.reported {
		return
	}
	u.reported = u.read
	u.onProgress(u.read)
}
