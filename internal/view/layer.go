package view

import "sync"

type GraphicsLayer struct {
	mu       sync.RWMutex
	id       string
	graphics []Graphic
}

func NewLayer(id string) *GraphicsLayer {
	return &GraphicsLayer{id: id}
}

func (l *GraphicsLayer) ID() string { return l.id }

func (l *GraphicsLayer) Add(gs ...Graphic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graphics = append(l.graphics, gs...)
}

func (l *GraphicsLayer) RemoveAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graphics = nil
}

// Replace clears the layer and adds gs under one lock, so readers never see
// the cleared intermediate state
func (l *GraphicsLayer) Replace(gs ...Graphic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graphics = append([]Graphic(nil), gs...)
}

func (l *GraphicsLayer) Graphics() []Graphic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Graphic(nil), l.graphics...)
}

func (l *GraphicsLayer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.graphics)
}
