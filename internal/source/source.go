// Package source delivers inbound video link bytes from the network or from
// recordings.
package source

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/vidlink/internal/logging"
)

var log = logging.DefaultLogger.WithTag("source")

// A Source produces an ordered byte stream. Read sizes and timing are
// arbitrary; consumers must not rely on them lining up with NAL units.
type Source interface {
	// Run passes stream bytes to feed until ctx is done or the stream ends.
	// feed is never called concurrently and must not retain its argument.
	Run(ctx context.Context, feed func([]byte)) error

	Close() error
}

// Open a source based on its "source spec". A source spec is a colon-separated string
// consisting of a source tag and a source path:
//
//	sourceSpec = sourceTag + ":" + sourcePath
//
// The format of the source path is defined by the registered OpenFunc.
func OpenSource(spec string) (Source, error) {
	log.Debug("Registered source types: %v", Types())

	parts := strings.SplitN(spec, ":", 2)
	tag := parts[0]
	var path string
	if len(parts) == 2 {
		path = parts[1]
	}

	registryMu.RLock()
	open, found := registry[tag]
	registryMu.RUnlock()
	if !found {
		return nil, errors.Errorf("source type '%s' not registered", tag)
	}

	src, err := open(path)
	return src, errors.Wrapf(err, "open %s source", tag)
}

// A function used to open a specific source type.
type OpenFunc func(path string) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{}
)

// Register a source type, identified by its "source tag". Sources of this type will be
// opened with the given function.
func RegisterSourceType(tag string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = open
}

func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var tags []string
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
