package logger

import "sync"

// Named loggers looked up by subsystems that are not handed a logger, such
// as pipeline runs started without WithLogger.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Logger)
)

// Register stores l under name and returns the logger it replaced, or nil.
func Register(name string, l *Logger) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	prev := registry[name]
	registry[name] = l
	return prev
}

// Unregister removes a named logger.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// Get returns the logger registered under name. Unknown names get the
// global logger tagged with name as its component.
func Get(name string) *Logger {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if ok {
		return l
	}
	return GetGlobalLogger().WithComponent(name)
}
