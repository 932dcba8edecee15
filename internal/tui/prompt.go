package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/prodline/tracker/internal/engine"
)

// PromptBridge connects the engine's blocking PromptPort to the
// bubbletea event loop. The engine calls Show from its own goroutine;
// the bridge forwards the request to the UI and blocks until the
// operator answers or the engine cancels the prompt.
type PromptBridge struct {
	mu      sync.Mutex
	program *tea.Program
}

var _ engine.PromptPort = (*PromptBridge)(nil)

// SetProgram wires the running program in. Show calls before this are
// answered with a timeout so the engine's countdown still governs.
func (b *PromptBridge) SetProgram(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

// Show implements engine.PromptPort.
func (b *PromptBridge) Show(ctx context.Context, deadline time.Time) engine.PromptAnswer {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p == nil {
		<-ctx.Done()
		return engine.AnswerTimeout
	}

	answer := make(chan engine.PromptAnswer, 1)
	p.Send(MsgPromptOpen{Deadline: deadline, Answer: answer})

	select {
	case a := <-answer:
		return a
	case <-ctx.Done():
		p.Send(MsgPromptClose{})
		return engine.AnswerTimeout
	}
}
