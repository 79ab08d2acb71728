//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for Manager
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package vidlink

import (
	"github.com/pkg/errors"

	"github.com/lanikai/vidlink/internal/codec"
)

const (
	DefaultMimeType = codec.MimeTypeAVC
	DefaultWidth    = 1920
	DefaultHeight   = 1080
)

// Config is fixed at session start; a running session never renegotiates it.
type Config struct {
	// Decoder media type. Defaults to video/avc.
	MimeType string

	// Frame size the decoder is configured with. Defaults to 1920x1080.
	Width  int
	Height int

	// Nominal frame rate, used to stamp access units. Defaults to 30.
	FrameRate int

	// Largest NAL unit the assembler accepts. Defaults to 4 MiB.
	MaxUnitSize int

	// Creates decoder handles. Defaults to the codec registry.
	Codecs codec.Factory
}

func (cfg *Config) applyDefaults() error {
	if cfg.MimeType == "" {
		cfg.MimeType = DefaultMimeType
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Codecs == nil {
		cfg.Codecs = codec.New
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return errors.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate < 0 {
		return errors.Errorf("invalid frame rate %d", cfg.FrameRate)
	}
	return nil
}
