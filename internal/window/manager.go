// file: internal/window/manager.go
// version: 1.1.0
// guid: 3d4e5f6a-7b8c-9d0e-1f2a-3b4c5d6e7f8a

package window

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/catalog"
)

// Manager owns the windows of all displayed categories, keyed by
// (catalog, collection, category). Windows are created on first display,
// grow monotonically, and are dropped on catalog refresh or category
// unmount.
type Manager struct {
	mu           sync.Mutex
	windows      map[string]*Window
	chunkSize    int
	viewportSize int
	log          logrus.FieldLogger
}

// NewManager creates an empty window manager.
func NewManager(chunkSize, viewportSize int, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		windows:      make(map[string]*Window),
		chunkSize:    chunkSize,
		viewportSize: viewportSize,
		log:          log,
	}
}

func windowKey(key catalog.Key, col catalog.Collection, categoryID string) string {
	return key.Hash() + "|" + string(col) + "|" + categoryID
}

// Get returns an existing window, if the category is currently displayed.
func (m *Manager) Get(key catalog.Key, col catalog.Collection, categoryID string) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowKey(key, col, categoryID)]
	return w, ok
}

// GetOrCreate returns the category's window, creating it with the given
// loader on first display.
func (m *Manager) GetOrCreate(key catalog.Key, col catalog.Collection, categoryID string, loader Loader) *Window {
	k := windowKey(key, col, categoryID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[k]; ok {
		return w
	}
	w := New(m.chunkSize, m.viewportSize, loader)
	m.windows[k] = w
	m.log.WithField("window", k).Debug("window created")
	return w
}

// Remove drops one category's window (category unmount).
func (m *Manager) Remove(key catalog.Key, col catalog.Collection, categoryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, windowKey(key, col, categoryID))
}

// ResetCatalog drops every window belonging to one catalog. Called after a
// refresh replaces the catalog's collections.
func (m *Manager) ResetCatalog(key catalog.Key) {
	prefix := key.Hash() + "|"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.windows {
		if strings.HasPrefix(k, prefix) {
			delete(m.windows, k)
		}
	}
}

// Len reports the number of live windows.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
