package present

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosley/dictate/controller"
	"github.com/bosley/dictate/history"
)

type recorder struct {
	calls []string
}

func (r *recorder) Notify(title, message string) { r.calls = append(r.calls, "notify:"+title) }
func (r *recorder) CopyAndPaste(text string)     { r.calls = append(r.calls, "paste:"+text) }

type stateOnly struct {
	modes []controller.Mode
}

func (s *stateOnly) SetState(mode controller.Mode) { s.modes = append(s.modes, mode) }

type publisher struct {
	entries []history.Entry
}

func (p *publisher) Publish(entry history.Entry) { p.entries = append(p.entries, entry) }

func TestFanoutDispatchesByCapability(t *testing.T) {
	r := &recorder{}
	s := &stateOnly{}
	p := &publisher{}
	f := NewFanout(r, s, nil)
	f.Add(p)

	f.Notify("Whisper Result", "hi")
	f.SetState(controller.Recording)
	f.CopyAndPaste("hi")
	f.Publish(history.Entry{Timestamp: "t", Text: "hi"})

	assert.Equal(t, []string{"notify:Whisper Result", "paste:hi"}, r.calls)
	assert.Equal(t, []controller.Mode{controller.Recording}, s.modes)
	assert.Equal(t, []history.Entry{{Timestamp: "t", Text: "hi"}}, p.entries)
}

func TestFanoutEmpty(t *testing.T) {
	f := NewFanout()
	assert.NotPanics(t, func() {
		f.Notify("a", "b")
		f.SetState(controller.Idle)
		f.CopyAndPaste("x")
	})
}

func TestLabelsFollowMode(t *testing.T) {
	idle := LabelsFor(controller.Idle)
	assert.Equal(t, "Record & Transcribe", idle.Action)
	assert.True(t, idle.Enabled)

	rec := LabelsFor(controller.Recording)
	assert.Equal(t, "Stop Recording", rec.Action)
	assert.Equal(t, "Recording...", rec.Tooltip)

	proc := LabelsFor(controller.Processing)
	assert.False(t, proc.Enabled)
	assert.Equal(t, "Transcribing...", proc.Tooltip)
}
