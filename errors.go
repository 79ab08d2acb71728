package vidlink

import "github.com/pkg/errors"

var (
	// ErrNoSurface is returned by Start when no render surface is given.
	ErrNoSurface = errors.New("vidlink: surface must be non-nil")
)
