// Package agent drives the reasoning loop: an explicit state machine
// alternating between querying the reasoning engine and executing the
// tool calls it requests, until the engine answers without calling a
// tool, a ceiling trips, or the run context expires.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/llm"
	"shiftbot/internal/logging"
	"shiftbot/internal/store"
	"shiftbot/internal/tools"
)

// State is the loop's lifecycle position.
type State string

const (
	StateThinking      State = "thinking"
	StateToolExecuting State = "tool_executing"
	StateAnswered      State = "answered"
	StateFailed        State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateAnswered || s == StateFailed
}

// EventKind tags observer events.
type EventKind string

const (
	// EventText is assistant commentary, with or without tool calls.
	EventText EventKind = "text"
	// EventToolStart fires before a tool executes.
	EventToolStart EventKind = "tool_start"
	// EventToolEnd fires after a tool finished or failed.
	EventToolEnd EventKind = "tool_end"
	// EventFinished fires exactly once, with the terminal state.
	EventFinished EventKind = "finished"
)

// Event is one observable step of a run, delivered synchronously to the
// OnEvent callback in execution order.
type Event struct {
	Kind     EventKind
	Turn     int
	Tool     string
	Args     string
	Output   string
	Err      error
	Text     string
	State    State
	Duration time.Duration
}

// Task is one unit of work for the loop.
type Task struct {
	// Slug ties the run to a single challenge; empty means the whole
	// catalog.
	Slug string

	// Instructions is the user turn opening the transcript. Empty falls
	// back to DefaultTask(Slug).
	Instructions string
}

// Outcome is the terminal result of a run. A Failed outcome carries the
// last error's text in Answer, never a stack trace.
type Outcome struct {
	RunID    string
	State    State
	Answer   string
	Turns    int
	Duration time.Duration
}

// Deps wires the session-scoped collaborators of a run. Store and
// OnEvent are optional; everything else is required.
type Deps struct {
	Client   llm.Client
	Registry *tools.Registry
	Store    *store.Store
	Address  string
	OnEvent  func(Event)
}

// Agent runs one task at a time. Tool execution is sequential within a
// run: the loop never issues a new call before the previous record is
// appended, so the wallet and workspace need no locking.
type Agent struct {
	cfg     *config.Config
	deps    Deps
	backoff time.Duration
	log     *zap.SugaredLogger
}

// New builds an agent over its collaborators.
func New(cfg *config.Config, deps Deps) (*Agent, error) {
	if deps.Client == nil {
		return nil, fault.Configf("agent requires a reasoning engine client")
	}
	if deps.Registry == nil {
		return nil, fault.Configf("agent requires a tool registry")
	}
	return &Agent{
		cfg:     cfg,
		deps:    deps,
		backoff: time.Second,
		log:     logging.L("agent"),
	}, nil
}

// Run executes one task to a terminal state. Loop-level failures (turn
// ceiling, consecutive validation misses, context expiry, an unreachable
// reasoning engine) come back as Outcome{State: StateFailed}; tool-level
// failures never end the run by themselves.
func (a *Agent) Run(ctx context.Context, task Task) *Outcome {
	start := time.Now()
	runID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.GetRunTimeout())
	defer cancel()

	if task.Instructions == "" {
		task.Instructions = DefaultTask(task.Slug)
	}
	a.persistStart(runID, task)

	messages := []llm.Message{
		llm.SystemMessage(a.systemPrompt()),
		llm.UserMessage(task.Instructions),
	}
	decls := declarations(a.deps.Registry)

	a.log.Infow("run started",
		"run_id", runID, "slug", task.Slug, "model", a.deps.Client.Model(),
		"tools", len(decls), "max_turns", a.cfg.Run.MaxTurns)

	var (
		state         = StateThinking
		answer        string
		turns         int
		badValidation int
	)

loop:
	for turns = 1; turns <= a.cfg.Run.MaxTurns; turns++ {
		if err := ctx.Err(); err != nil {
			state, answer = StateFailed, expiryReason(err)
			break
		}

		completion, err := a.deps.Client.Complete(ctx, messages, decls)
		if err != nil {
			state, answer = StateFailed, "reasoning engine unavailable: "+err.Error()
			break
		}

		if completion.Text != "" {
			a.emit(Event{Kind: EventText, Turn: turns, Text: completion.Text})
		}
		if !completion.HasToolCalls() {
			state, answer = StateAnswered, completion.Text
			break
		}

		messages = append(messages, llm.AssistantMessage(completion.Text, completion.ToolCalls))

		state = StateToolExecuting
		for _, call := range completion.ToolCalls {
			result, msg := a.executeCall(ctx, runID, turns, call)
			messages = append(messages, msg)

			if fault.IsValidation(result.Err) {
				badValidation++
			} else {
				badValidation = 0
			}
			if badValidation >= a.cfg.Run.MaxValidationFailures {
				state = StateFailed
				answer = fmt.Sprintf("%d consecutive tool calls failed validation; last: %v",
					badValidation, result.Err)
				break loop
			}

			if err := ctx.Err(); err != nil {
				state, answer = StateFailed, expiryReason(err)
				break loop
			}
		}
		state = StateThinking
	}

	if !state.Terminal() {
		turns = a.cfg.Run.MaxTurns
		state = StateFailed
		answer = fmt.Sprintf("turn ceiling (%d) exceeded without a final answer", a.cfg.Run.MaxTurns)
	}

	elapsed := time.Since(start)
	a.persistFinish(runID, state, turns, answer)
	a.emit(Event{Kind: EventFinished, Turn: turns, State: state, Text: answer, Duration: elapsed})

	if state == StateFailed {
		a.log.Warnw("run failed", "run_id", runID, "turns", turns, "reason", answer)
	} else {
		a.log.Infow("run answered", "run_id", runID, "turns", turns, "duration", elapsed)
	}

	return &Outcome{RunID: runID, State: state, Answer: answer, Turns: turns, Duration: elapsed}
}

// executeCall runs one requested call through the registry, journals it,
// and renders the transcript message the engine sees next turn. Transport
// failures on idempotent tools are retried in place with exponential
// backoff; submissions and builds execute exactly once.
func (a *Agent) executeCall(ctx context.Context, runID string, turn int, call llm.ToolCall) (*tools.Result, llm.Message) {
	name := call.Function.Name

	args, err := call.Args()
	if err != nil {
		verr := &fault.ValidationError{Tool: name, Reason: err.Error()}
		result := &tools.Result{ToolName: name, Err: verr}
		a.record(runID, turn, call, result)
		a.emit(Event{Kind: EventToolEnd, Turn: turn, Tool: name, Err: verr})
		return result, llm.ToolMessage(call.ID, renderError(verr))
	}

	a.emit(Event{Kind: EventToolStart, Turn: turn, Tool: name, Args: call.Function.Arguments})

	tool := a.deps.Registry.Get(name)

	var result *tools.Result
retry:
	for attempt := 0; ; attempt++ {
		result, _ = a.deps.Registry.Execute(ctx, name, args)
		if result.Err == nil || !fault.IsTransport(result.Err) {
			break
		}
		if tool == nil || !tool.Idempotent || attempt >= a.cfg.Run.TransportRetries {
			break
		}

		wait := a.backoff * (1 << attempt)
		a.log.Warnw("transport failure, retrying tool",
			"tool", name, "attempt", attempt+1, "backoff", wait)
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(wait):
		}
	}

	a.record(runID, turn, call, result)
	a.emit(Event{Kind: EventToolEnd, Turn: turn, Tool: name,
		Output: result.Output, Err: result.Err, Duration: result.Duration})

	content := result.Output
	if result.Err != nil {
		content = renderError(result.Err)
	}
	return result, llm.ToolMessage(call.ID, content)
}

// record journals one call; persistence failures never disturb the run.
func (a *Agent) record(runID string, turn int, call llm.ToolCall, result *tools.Result) {
	if a.deps.Store == nil {
		return
	}

	rec := &store.ToolCallRecord{
		RunID:    runID,
		Turn:     turn,
		Tool:     result.ToolName,
		Args:     call.Function.Arguments,
		Output:   result.Output,
		Duration: result.Duration,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	if err := a.deps.Store.AppendToolCall(rec); err != nil {
		a.log.Warnw("tool call not journaled", "tool", rec.Tool, "error", err)
	}
}

func (a *Agent) persistStart(runID string, task Task) {
	if a.deps.Store == nil {
		return
	}
	err := a.deps.Store.CreateRun(&store.RunRecord{
		ID:      runID,
		Slug:    task.Slug,
		Address: a.deps.Address,
		Model:   a.deps.Client.Model(),
		State:   string(StateThinking),
	})
	if err != nil {
		a.log.Warnw("run not journaled", "run_id", runID, "error", err)
	}
}

func (a *Agent) persistFinish(runID string, state State, turns int, answer string) {
	if a.deps.Store == nil {
		return
	}
	if err := a.deps.Store.FinishRun(runID, string(state), turns, answer); err != nil {
		a.log.Warnw("run outcome not journaled", "run_id", runID, "error", err)
	}
}

func (a *Agent) emit(ev Event) {
	if a.deps.OnEvent != nil {
		a.deps.OnEvent(ev)
	}
}

// declarations renders every registered tool for the reasoning engine,
// in the registry's stable name order.
func declarations(reg *tools.Registry) []llm.Tool {
	all := reg.All()
	decls := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		decls = append(decls, llm.FunctionTool(t.Name, t.Description, t.InputSchema()))
	}
	return decls
}

// renderError shapes a tool failure for the reasoning engine. Build
// failures append the captured output tail so the engine can correct the
// generated source.
func renderError(err error) string {
	msg := "error: " + err.Error()
	if be, ok := fault.AsBuild(err); ok && be.StderrTail != "" {
		msg += "\n" + be.StderrTail
	}
	return msg
}

// expiryReason distinguishes the wall-clock ceiling from caller
// cancellation.
func expiryReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "run timed out before a final answer"
	}
	return "run cancelled"
}
