package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/scribe/internal/runtime"
)

type UI interface {
	UpdateStatus(status string)
	StageStarted(index, total int, name string)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)                 {}
func (s SilentUI) StageStarted(index, total int, name string) {}
func (s SilentUI) Log(msg string)                             {}

// LineUI prints one plain line per update, for CI and piped output.
type LineUI struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLineUI(out io.Writer) *LineUI {
	return &LineUI{out: out}
}

func (l *LineUI) UpdateStatus(status string) {
	l.printf("status: %s\n", status)
}

func (l *LineUI) StageStarted(index, total int, name string) {
	l.printf("[%d/%d] %s\n", index+1, total, name)
}

func (l *LineUI) Log(msg string) {
	l.printf("%s\n", msg)
}

func (l *LineUI) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}

// Attach forwards pipeline events from bus to u.
func Attach(bus *runtime.EventBus, u UI) {
	bus.Subscribe(runtime.EventRunStart, func(e runtime.Event) {
		u.UpdateStatus("running")
	})
	bus.Subscribe(runtime.EventStageStart, func(e runtime.Event) {
		u.StageStarted(e.Int(runtime.DataIndex), e.Int(runtime.DataTotal), e.String(runtime.DataStage))
	})
	bus.Subscribe(runtime.EventStageEnd, func(e runtime.Event) {
		u.Log(fmt.Sprintf("%s finished in %s", e.String(runtime.DataStage), e.String(runtime.DataDuration)))
	})
	bus.Subscribe(runtime.EventStageError, func(e runtime.Event) {
		u.Log(fmt.Sprintf("%s failed: %s", e.String(runtime.DataStage), e.String(runtime.DataError)))
	})
	bus.Subscribe(runtime.EventRetry, func(e runtime.Event) {
		u.Log(fmt.Sprintf("retrying model call in %s (attempt %d)", e.String(runtime.DataDelay), e.Int(runtime.DataAttempt)))
	})
	bus.Subscribe(runtime.EventMemoryPersistFailed, func(e runtime.Event) {
		u.Log(fmt.Sprintf("warning: run not saved to memory: %s", e.String(runtime.DataError)))
	})
	bus.Subscribe(runtime.EventRunComplete, func(e runtime.Event) {
		u.UpdateStatus("complete")
	})
}
