//////////////////////////////////////////////////////////////////////////////
//
// Video decoder capability
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

// Package codec describes the decoder capability a decode session drives,
// modeled after a hardware codec with client-visible input and output buffer
// queues.
package codec

import (
	"context"
	"time"

	errors "golang.org/x/xerrors"
)

const MimeTypeAVC = "video/avc"

// Buffer flags, shared by input and output buffers.
type Flags uint32

const (
	FlagKeyFrame Flags = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Format is fixed at configuration time and not renegotiated mid-session.
type Format struct {
	MimeType string
	Width    int
	Height   int
}

// BufferInfo describes a dequeued output buffer.
type BufferInfo struct {
	Index int
	Size  int
	PTS   time.Duration
	Flags Flags
}

// A Surface receives rendered output buffers. Ownership stays with the caller
// that supplied it; a codec only borrows it between Configure and Release.
type Surface interface {
	Present(data []byte, info BufferInfo) error
}

// Codec is a decoder with explicit buffer ownership. Input buffers are
// borrowed with DequeueInputBuffer and handed back with QueueInputBuffer;
// output buffers are borrowed with DequeueOutputBuffer and must be handed
// back with ReleaseOutputBuffer, or the decoder stalls.
//
// Both dequeue calls block until a buffer is available, the context is done,
// or the codec is stopped. Operations on a codec that is not running fail
// with an error wrapping ErrIllegalState.
type Codec interface {
	Configure(format Format, surface Surface) error
	Start() error
	Stop() error
	Release()

	DequeueInputBuffer(ctx context.Context) (index int, buf []byte, err error)
	QueueInputBuffer(index, size int, pts time.Duration, flags Flags) error

	DequeueOutputBuffer(ctx context.Context) (BufferInfo, error)
	ReleaseOutputBuffer(index int, render bool) error
}

var (
	ErrIllegalState = errors.New("codec: illegal state")
	ErrBadIndex     = errors.New("codec: buffer index not owned by client")
)

// IsStateFault reports whether err came from driving a codec that was not in
// a running state.
func IsStateFault(err error) bool {
	return errors.Is(err, ErrIllegalState)
}
