//////////////////////////////////////////////////////////////////////////////
//
// Render surfaces
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package codec

import (
	"os"
	"sync"
)

// SurfaceFunc adapts a function to the Surface interface.
type SurfaceFunc func(data []byte, info BufferInfo) error

func (f SurfaceFunc) Present(data []byte, info BufferInfo) error {
	return f(data, info)
}

// FileSurface writes every presented access unit to a file, producing a raw
// Annex B stream that can be replayed with ffplay or fed back as an h264
// source. Useful for testing.
type FileSurface struct {
	mu     sync.Mutex
	file   *os.File
	frames int
}

func NewFileSurface(filename string) (*FileSurface, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &FileSurface{file: f}, nil
}

func (s *FileSurface) Present(data []byte, info BufferInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(data); err != nil {
		return err
	}
	s.frames++
	return nil
}

// Frames returns the number of access units written.
func (s *FileSurface) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *FileSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
