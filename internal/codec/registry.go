package codec

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// A Factory creates a codec handle for a media type.
type Factory func(mimeType string) (Codec, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register a factory for a media type, replacing any previous one.
func Register(mimeType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[mimeType] = f
}

// New creates a codec for the given media type from the registry.
func New(mimeType string) (Codec, error) {
	registryMu.RLock()
	f, found := registry[mimeType]
	registryMu.RUnlock()

	if !found {
		log.Debug("Registered codec types: %v", Types())
		return nil, errors.Errorf("codec type '%s' not registered", mimeType)
	}
	return f(mimeType)
}

// Types lists the registered media types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var types []string
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
