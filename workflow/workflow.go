// Package workflow implements the upload-and-analyze controller.
//
// A Workflow owns the view-state for one screen: the selected file, the
// loading flag, the latest result or error, and the shared image-rendered
// flag. Renderers read it through Snapshot and Subscribe and never mutate
// it directly.
//
// Each Submit takes a new sequence token. Only the settle carrying the
// latest token is applied; older responses are discarded.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/xrayview/log"
	"github.com/pithecene-io/xrayview/metrics"
	"github.com/pithecene-io/xrayview/types"
)

// MsgNoFileSelected is the advisory shown when submitting without a file.
const MsgNoFileSelected = "Please select a DICOM file first."

// fallbackErrorMessage is shown when a failure carries no text.
const fallbackErrorMessage = "Upload failed"

var (
	// ErrNoFileSelected is returned by Submit when no file is pending.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrSuperseded is returned by Submit when a newer submission started
	// before this one settled. Its outcome was discarded.
	ErrSuperseded = errors.New("submission superseded")
)

// Analyzer performs the remote analysis of a file.
type Analyzer interface {
	Analyze(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error) {
	return f(ctx, file)
}

// Advisor presents a blocking advisory to the user.
type Advisor func(message string)

// Observer receives a copy of the state after every change.
// Observers run on the goroutine that made the change and must not call
// SelectFile, Submit or MarkImageLoaded.
type Observer func(State)

// Settlement describes one applied submission outcome.
type Settlement struct {
	Token     uint64
	File      types.FileHandle
	Result    *types.AnalysisResult // nil on failure
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports whether the submission produced a result.
func (s Settlement) Succeeded() bool { return s.Err == nil }

// SettleHook runs after a settlement is applied and observers were notified.
type SettleHook func(Settlement)

// Option configures a Workflow.
type Option func(*Workflow)

// WithAdvisor sets the advisory presenter.
func WithAdvisor(a Advisor) Option {
	return func(w *Workflow) { w.advisor = a }
}

// WithSettleHook registers a hook called after each applied settlement.
func WithSettleHook(h SettleHook) Option {
	return func(w *Workflow) { w.hooks = append(w.hooks, h) }
}

// WithLogger sets the logger (default discards).
func WithLogger(l *log.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Workflow) { w.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Workflow is the upload controller. It is safe for concurrent use.
type Workflow struct {
	analyzer Analyzer
	advisor  Advisor
	hooks    []SettleHook
	logger   *log.Logger
	metrics  *metrics.Collector
	now      func() time.Time

	// emitMu orders mutations together with their notifications so that
	// observers see states in the order they were produced.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     State
	seq       uint64
	observers map[int]Observer
	nextObsID int
}

// New creates a Workflow in its initial state.
func New(analyzer Analyzer, opts ...Option) *Workflow {
	w := &Workflow{
		analyzer:  analyzer,
		advisor:   func(string) {},
		logger:    log.Nop(),
		now:       time.Now,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Subscribe registers fn for state changes and returns its cancel func.
func (w *Workflow) Subscribe(fn Observer) (cancel func()) {
	w.mu.Lock()
	id := w.nextObsID
	w.nextObsID++
	w.observers[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.observers, id)
			w.mu.Unlock()
		})
	}
}

// SelectFile records f as the pending selection and clears any error.
// Results of a previous submission are left in place. A nil f clears
// the selection.
func (w *Workflow) SelectFile(f types.FileHandle) {
	w.mutate(func(s *State) bool {
		s.SelectedFile = f
		s.ErrorMessage = ""
		return true
	})
	if f != nil {
		w.logger.Debug("file selected", map[string]any{"file": f.Name()})
	}
}

// Submit uploads the selected file and applies the outcome.
//
// Without a selection it presents MsgNoFileSelected through the advisor
// and returns ErrNoFileSelected without touching state. Otherwise it
// clears the previous result, sets loading, and calls the analyzer once.
// It returns the analyzer's error, or ErrSuperseded when a newer Submit
// started first.
func (w *Workflow) Submit(ctx context.Context) error {
	var (
		file  types.FileHandle
		token uint64
	)
	w.mutate(func(s *State) bool {
		if s.SelectedFile == nil {
			return false
		}
		file = s.SelectedFile
		w.seq++
		token = w.seq
		s.IsLoading = true
		s.ErrorMessage = ""
		s.ReportText = ""
		s.Predictions = nil
		s.setImageURLs("", "")
		return true
	})

	if file == nil {
		w.metrics.IncAdvisory()
		w.logger.Info("submit without selection", nil)
		w.advisor(MsgNoFileSelected)
		return ErrNoFileSelected
	}

	w.metrics.IncSubmissionStarted()
	w.logger.Info("submission started", map[string]any{
		"token": token,
		"file":  file.Name(),
	})

	started := w.now()
	result, err := w.analyze(ctx, file)
	return w.settle(Settlement{
		Token:     token,
		File:      file,
		Result:    result,
		Err:       err,
		StartedAt: started,
		Duration:  w.now().Sub(started),
	})
}

// MarkImageLoaded signals that the image at url finished loading.
// It reveals both image panels when url is one of the current URLs and
// reports whether the signal was applied.
func (w *Workflow) MarkImageLoaded(url string) bool {
	applied := false
	w.mutate(func(s *State) bool {
		if url == "" || s.ImagesRendered {
			return false
		}
		if url != s.OriginalImageURL && url != s.AnnotatedImageURL {
			return false
		}
		s.ImagesRendered = true
		applied = true
		return true
	})
	if applied {
		w.metrics.IncImageLoaded()
	}
	return applied
}

// analyze calls the analyzer, converting a panic into an error so that
// loading is always cleared.
func (w *Workflow) analyze(ctx context.Context, file types.FileHandle) (res *types.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("analysis aborted: %v", r)
		}
	}()
	res, err = w.analyzer.Analyze(ctx, file)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("analysis returned no result")
	}
	return res, nil
}

func (w *Workflow) settle(s Settlement) error {
	stale := false
	w.mutate(func(st *State) bool {
		if s.Token != w.seq {
			stale = true
			return false
		}
		if s.Err != nil {
			st.ErrorMessage = errorMessage(s.Err)
		} else {
			st.setImageURLs(s.Result.OriginalImageURL, s.Result.AnnotatedImageURL)
			st.ReportText = s.Result.Report
			st.Predictions = s.Result.Predictions
		}
		st.IsLoading = false
		return true
	})

	fields := map[string]any{
		"token":       s.Token,
		"file":        s.File.Name(),
		"duration_ms": s.Duration.Milliseconds(),
	}
	switch {
	case stale:
		w.metrics.IncSubmissionSuperseded()
		w.logger.Info("stale submission discarded", fields)
		return ErrSuperseded
	case s.Err != nil:
		w.metrics.IncSubmissionFailed()
		fields["error"] = s.Err.Error()
		w.logger.Warn("submission failed", fields)
	default:
		w.metrics.IncSubmissionSucceeded()
		fields["predictions"] = len(s.Result.Predictions)
		w.logger.Info("submission succeeded", fields)
	}

	for _, h := range w.hooks {
		h(s)
	}
	return s.Err
}

// mutate applies fn under the state lock and notifies observers when fn
// reports a change.
func (w *Workflow) mutate(fn func(s *State) bool) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if !fn(&w.state) {
		w.mu.Unlock()
		return
	}
	observers := make([]Observer, 0, len(w.observers))
	for _, o := range w.observers {
		observers = append(observers, o)
	}
	w.mu.Unlock()

	for _, o := range observers {
		o(w.Snapshot())
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackErrorMessage
}
