package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_StageProgress(t *testing.T) {
	m := NewModel("quantum", 4)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	if !m.Ready {
		t.Fatal("model should be ready after window size")
	}

	m = update(t, m, StageMsg{Index: 2, Total: 4, Name: "critique"})
	if m.Stage != "critique" {
		t.Errorf("expected stage critique, got %q", m.Stage)
	}
	if m.Fraction() != 0.5 {
		t.Errorf("expected fraction 0.5, got %v", m.Fraction())
	}
	if len(m.Log) != 1 || m.Log[0] != "[3/4] critique" {
		t.Errorf("unexpected log %v", m.Log)
	}
	if !strings.Contains(m.View(), "critique") {
		t.Error("view should mention the current stage")
	}
}

func TestModel_Done(t *testing.T) {
	m := NewModel("q", 4)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	next, cmd := m.Update(DoneMsg{})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if m.Fraction() != 1 || m.Status != "complete" {
		t.Errorf("unexpected final state %+v", m)
	}

	failed := update(t, NewModel("q", 4), DoneMsg{Err: errors.New("boom")})
	if failed.Status != "failed" || failed.Err == nil {
		t.Errorf("unexpected failed state %+v", failed)
	}
}

func TestModel_StatusAndLog(t *testing.T) {
	m := NewModel("q", 4)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m = update(t, m, StatusMsg("running"))
	m = update(t, m, LogMsg("hello"))

	if m.Status != "running" {
		t.Errorf("expected status running, got %q", m.Status)
	}
	if len(m.Log) != 1 || m.Log[0] != "hello" {
		t.Errorf("unexpected log %v", m.Log)
	}
}

func TestModel_ZeroStages(t *testing.T) {
	if f := NewModel("q", 0).Fraction(); f != 0 {
		t.Errorf("expected 0, got %v", f)
	}
}
