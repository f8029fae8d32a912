// Package dispatch runs the bounded reason/act loop of a single request. A
// Reasoner picks the next calendar operation or produces the final answer;
// the Executor validates, normalizes and runs the operation; the outcome is
// appended to the transcript and the reasoner is consulted again.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/slotbot/internal/transcript"
)

// Fixed answers for the loop's terminal conditions.
const (
	FallbackAnswer            = "Sorry, I couldn't finish that request. Please try rephrasing it."
	ReasonerUnavailableAnswer = "Sorry, I'm having trouble thinking right now. Please try again in a moment."
	BackendUnavailableAnswer  = "Sorry, the calendar is not responding. Please try again later."
	CancelledAnswer           = "The request was cancelled."
	EmptyInputAnswer          = "What would you like to do with your calendar?"
)

const (
	DefaultMaxIterations   = 10
	DefaultReasonerTimeout = 30 * time.Second

	// maxBackendFailures is the number of backend failures after which the
	// request stops instead of retrying.
	maxBackendFailures = 2
)

// ErrReasonerTimeout is returned when a reasoner call exceeds its bound.
var ErrReasonerTimeout = errors.New("reasoner timed out")

// OperationRequest names exactly one operation with raw string arguments.
type OperationRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// Decision is what the reasoner returns on each turn: either a final Answer
// or an Operation to run.
type Decision struct {
	Answer    string
	Operation *OperationRequest
}

// Reasoner decides the next step given the full transcript.
type Reasoner interface {
	Reason(ctx context.Context, entries []transcript.Entry) (Decision, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, entries []transcript.Entry) (Decision, error)

func (f ReasonerFunc) Reason(ctx context.Context, entries []transcript.Entry) (Decision, error) {
	return f(ctx, entries)
}

// StopReason records why the loop terminated.
type StopReason string

const (
	StopAnswered        StopReason = "answered"
	StopIterationLimit  StopReason = "iteration_limit"
	StopReasonerFailure StopReason = "reasoner_failure"
	StopBackendFailure  StopReason = "backend_failure"
	StopCancelled       StopReason = "cancelled"
	StopEmptyInput      StopReason = "empty_input"
)

// Recorder observes loop events. metrics.Collector implements it.
type Recorder interface {
	ObserveOperation(operation, outcome string)
	ObserveReasonerFailure(kind string)
	ObserveStop(reason string, iterations int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string) {}
func (nopRecorder) ObserveReasonerFailure(string)   {}
func (nopRecorder) ObserveStop(string, int)         {}

// Options configures a Loop. Zero values select the defaults.
type Options struct {
	MaxIterations   int
	ReasonerTimeout time.Duration
	Logger          *slog.Logger
	Recorder        Recorder
}

// Response is the result of handling one user message.
type Response struct {
	Answer     string
	Transcript *transcript.Transcript
	Iterations int
	Stop       StopReason
}

// Loop is the dispatch state machine. A Loop is stateless between requests
// and safe for concurrent use; each request brings its own transcript.
type Loop struct {
	reasoner        Reasoner
	exec            *Executor
	maxIterations   int
	reasonerTimeout time.Duration
	logger          *slog.Logger
	recorder        Recorder
}

// NewLoop creates a dispatch loop.
func NewLoop(r Reasoner, exec *Executor, opts Options) *Loop {
	l := &Loop{
		reasoner:        r,
		exec:            exec,
		maxIterations:   opts.MaxIterations,
		reasonerTimeout: opts.ReasonerTimeout,
		logger:          opts.Logger,
		recorder:        opts.Recorder,
	}
	if l.maxIterations <= 0 {
		l.maxIterations = DefaultMaxIterations
	}
	if l.reasonerTimeout <= 0 {
		l.reasonerTimeout = DefaultReasonerTimeout
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.recorder == nil {
		l.recorder = nopRecorder{}
	}
	return l
}

// Executor returns the operation executor the loop dispatches to.
func (l *Loop) Executor() *Executor { return l.exec }

// Handle runs the loop for text on a fresh transcript.
func (l *Loop) Handle(ctx context.Context, text string) Response {
	return l.Run(ctx, transcript.New(), text)
}

// Run appends text to tr and runs the loop until the reasoner answers, the
// iteration bound is hit, a failure budget is spent or ctx is cancelled.
// Earlier entries of tr stay visible to the reasoner.
func (l *Loop) Run(ctx context.Context, tr *transcript.Transcript, text string) Response {
	if strings.TrimSpace(text) == "" {
		return l.finish(tr, EmptyInputAnswer, StopEmptyInput, 0)
	}
	tr.AppendUser(text)

	backendFailures := 0
	for iter := 1; iter <= l.maxIterations; iter++ {
		if ctx.Err() != nil {
			return l.finish(tr, CancelledAnswer, StopCancelled, iter-1)
		}

		dec, err := l.reason(ctx, tr)
		if err != nil {
			if ctx.Err() != nil {
				return l.finish(tr, CancelledAnswer, StopCancelled, iter)
			}
			l.logger.Warn("reasoner failed", "iteration", iter, "error", err)
			return l.finish(tr, ReasonerUnavailableAnswer, StopReasonerFailure, iter)
		}

		if dec.Operation == nil {
			answer := strings.TrimSpace(dec.Answer)
			if answer == "" {
				answer = FallbackAnswer
			}
			return l.finish(tr, answer, StopAnswered, iter)
		}

		op := dec.Operation
		tr.AppendRequest(op.Name, op.Arguments)

		// Operations are short and not preemptible; a caller disconnect takes
		// effect at the next iteration.
		out := l.exec.Execute(context.WithoutCancel(ctx), op.Name, op.Arguments)
		tr.AppendResult(out.Operation, out.Arguments, string(out.Kind), out.Text)
		l.recorder.ObserveOperation(out.Operation, string(out.Kind))

		attrs := []any{"iteration", iter, "operation", out.Operation, "outcome", out.Kind}
		if out.Err != nil && out.Kind.IsBackendFailure() {
			l.logger.Warn("calendar backend failure", append(attrs, "error", out.Err)...)
			backendFailures++
			if backendFailures >= maxBackendFailures {
				return l.finish(tr, BackendUnavailableAnswer, StopBackendFailure, iter)
			}
			continue
		}
		l.logger.Info("operation executed", attrs...)
	}

	l.logger.Warn("iteration limit reached", "max_iterations", l.maxIterations)
	return l.finish(tr, FallbackAnswer, StopIterationLimit, l.maxIterations)
}

func (l *Loop) finish(tr *transcript.Transcript, answer string, stop StopReason, iterations int) Response {
	if stop != StopEmptyInput {
		tr.AppendAnswer(answer)
	}
	l.recorder.ObserveStop(string(stop), iterations)
	return Response{Answer: answer, Transcript: tr, Iterations: iterations, Stop: stop}
}

// reason calls the reasoner under the per-call timeout, retrying once when
// the first attempt fails.
func (l *Loop) reason(ctx context.Context, tr *transcript.Transcript) (Decision, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		dec, err := l.reasonOnce(ctx, tr.Entries())
		if err == nil {
			if dec.Operation != nil && dec.Operation.Arguments == nil {
				dec.Operation.Arguments = map[string]string{}
			}
			return dec, nil
		}
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		kind := "error"
		if errors.Is(err, ErrReasonerTimeout) {
			kind = "timeout"
		}
		l.recorder.ObserveReasonerFailure(kind)
		l.logger.Warn("reasoner call failed", "attempt", attempt, "kind", kind, "error", err)
		lastErr = err
	}
	return Decision{}, lastErr
}

func (l *Loop) reasonOnce(ctx context.Context, entries []transcript.Entry) (Decision, error) {
	rctx, cancel := context.WithTimeout(ctx, l.reasonerTimeout)
	defer cancel()

	type result struct {
		dec Decision
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dec, err := l.reasoner.Reason(rctx, entries)
		ch <- result{dec, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && rctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return Decision{}, fmt.Errorf("%w after %s: %v", ErrReasonerTimeout, l.reasonerTimeout, r.err)
		}
		return r.dec, r.err
	case <-rctx.Done():
		select {
		case r := <-ch:
			if r.err == nil {
				return r.dec, nil
			}
		default:
		}
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		return Decision{}, fmt.Errorf("%w after %s", ErrReasonerTimeout, l.reasonerTimeout)
	}
}
