package present

import (
	"sync"

	"github.com/bosley/dictate/controller"
	"github.com/bosley/dictate/history"
)

type Notifier interface {
	Notify(title, message string)
}

type StateSink interface {
	SetState(mode controller.Mode)
}

type TextSink interface {
	CopyAndPaste(text string)
}

type Publisher interface {
	Publish(entry history.Entry)
}

// Fanout forwards each presentation call to every sink that implements it.
// It satisfies the controller and worker presenter contracts.
type Fanout struct {
	mu    sync.RWMutex
	sinks []any
}

func NewFanout(sinks ...any) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers another sink. Nil sinks are ignored.
func (f *Fanout) Add(sink any) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) snapshot() []any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]any(nil), f.sinks...)
}

func (f *Fanout) Notify(title, message string) {
	for _, s := range f.snapshot() {
		if n, ok := s.(Notifier); ok {
			n.Notify(title, message)
		}
	}
}

func (f *Fanout) SetState(mode controller.Mode) {
	for _, s := range f.snapshot() {
		if n, ok := s.(StateSink); ok {
			n.SetState(mode)
		}
	}
}

func (f *Fanout) CopyAndPaste(text string) {
	for _, s := range f.snapshot() {
		if n, ok := s.(TextSink); ok {
			n.CopyAndPaste(text)
		}
	}
}

func (f *Fanout) Publish(entry history.Entry) {
	for _, s := range f.snapshot() {
		if n, ok := s.(Publisher); ok {
			n.Publish(entry)
		}
	}
}
