package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/xrayview/metrics"
	"github.com/pithecene-io/xrayview/types"
)

type mockAnalyzer struct {
	mu          sync.Mutex
	AnalyzeFunc func(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error)
	Calls       int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error) {
	m.mu.Lock()
	m.Calls++
	fn := m.AnalyzeFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, file)
	}
	return sampleResult("a"), nil
}

func (m *mockAnalyzer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func sampleResult(name string) *types.AnalysisResult {
	return &types.AnalysisResult{
		OriginalImageURL:  "http://127.0.0.1:8000/converted/" + name + ".png",
		AnnotatedImageURL: "http://127.0.0.1:8000/converted/" + name + "_annotated.png",
		Report:            "Report for " + name + "\n\n  indented line",
		Predictions:       []types.Prediction{{Class: "caries", Confidence: 0.8}},
	}
}

func scan(name string) types.FileHandle {
	return types.MemoryFile{Filename: name, Data: []byte("DICM")}
}

func TestNew_InitialState(t *testing.T) {
	w := New(&mockAnalyzer{})
	s := w.Snapshot()

	assert.Nil(t, s.SelectedFile)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.OriginalImageURL)
	assert.Empty(t, s.AnnotatedImageURL)
	assert.Empty(t, s.ReportText)
	assert.Empty(t, s.ErrorMessage)
	assert.False(t, s.ImagesRendered)
}

func TestSubmit_NoFileSelected(t *testing.T) {
	var advised []string
	m := &mockAnalyzer{}
	c := metrics.NewCollector("s", "o", "", "")
	w := New(m, WithAdvisor(func(msg string) { advised = append(advised, msg) }), WithMetrics(c))

	notified := 0
	w.Subscribe(func(State) { notified++ })

	before := w.Snapshot()
	err := w.Submit(t.Context())

	require.ErrorIs(t, err, ErrNoFileSelected)
	assert.Equal(t, []string{MsgNoFileSelected}, advised)
	assert.Equal(t, 0, m.calls(), "no network call without a file")
	assert.Equal(t, before, w.Snapshot(), "state must be untouched")
	assert.Equal(t, 0, notified)
	assert.Equal(t, int64(1), c.Snapshot().Advisories)
	assert.Equal(t, int64(0), c.Snapshot().SubmissionsStarted)
}

func TestSelectFile_NilClearsSelection(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		return nil, errors.New("Upload failed: Bad Gateway")
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))
	require.Error(t, w.Submit(t.Context()))

	w.SelectFile(nil)
	require.ErrorIs(t, w.Submit(t.Context()), ErrNoFileSelected)
	assert.Equal(t, "", w.Snapshot().ErrorMessage, "clearing the selection clears the error")
	assert.Equal(t, 1, m.calls())
}

func TestSubmit_Success(t *testing.T) {
	c := metrics.NewCollector("s", "o", "", "")
	w := New(&mockAnalyzer{}, WithMetrics(c))
	w.SelectFile(scan("a.dcm"))

	require.NoError(t, w.Submit(t.Context()))

	s := w.Snapshot()
	want := sampleResult("a")
	assert.False(t, s.IsLoading)
	assert.Equal(t, want.OriginalImageURL, s.OriginalImageURL)
	assert.Equal(t, want.AnnotatedImageURL, s.AnnotatedImageURL)
	assert.Equal(t, want.Report, s.ReportText, "report is stored verbatim")
	assert.Equal(t, want.Predictions, s.Predictions)
	assert.Empty(t, s.ErrorMessage)
	assert.False(t, s.ImagesRendered, "images are hidden until a load signal")

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.SubmissionsStarted)
	assert.Equal(t, int64(1), snap.SubmissionsSucceeded)
}

func TestSubmit_Failure(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		return nil, errors.New("Upload failed: Internal Server Error")
	}}
	c := metrics.NewCollector("s", "o", "", "")
	w := New(m, WithMetrics(c))
	w.SelectFile(scan("a.dcm"))

	err := w.Submit(t.Context())
	require.EqualError(t, err, "Upload failed: Internal Server Error")

	s := w.Snapshot()
	assert.False(t, s.IsLoading)
	assert.Equal(t, "Upload failed: Internal Server Error", s.ErrorMessage)
	assert.Empty(t, s.OriginalImageURL)
	assert.Empty(t, s.AnnotatedImageURL)
	assert.Empty(t, s.ReportText)
	assert.Equal(t, int64(1), c.Snapshot().SubmissionsFailed)
}

func TestSubmit_EmptyErrorText(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		return nil, errors.New("")
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))
	require.Error(t, w.Submit(t.Context()))
	assert.Equal(t, "Upload failed", w.Snapshot().ErrorMessage)
}

func TestSubmit_NilResultIsFailure(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		return nil, nil
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))
	require.Error(t, w.Submit(t.Context()))
	assert.NotEmpty(t, w.Snapshot().ErrorMessage)
	assert.False(t, w.Snapshot().IsLoading)
}

func TestSubmit_PanicClearsLoading(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		panic("connection reset")
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))

	err := w.Submit(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	s := w.Snapshot()
	assert.False(t, s.IsLoading)
	assert.Contains(t, s.ErrorMessage, "connection reset")
}

func TestSubmit_ClearsPreviousOutcomeBeforeCall(t *testing.T) {
	var w *Workflow
	fail := true
	m := &mockAnalyzer{}
	m.AnalyzeFunc = func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		s := w.Snapshot()
		assert.True(t, s.IsLoading, "loading during call")
		assert.Empty(t, s.ErrorMessage, "error cleared before call")
		assert.Empty(t, s.ReportText, "report cleared before call")
		assert.Empty(t, s.OriginalImageURL, "original cleared before call")
		assert.Empty(t, s.AnnotatedImageURL, "annotated cleared before call")
		assert.False(t, s.ImagesRendered)
		if fail {
			return nil, errors.New("boom")
		}
		return sampleResult("b"), nil
	}
	w = New(m)
	w.SelectFile(scan("a.dcm"))

	// First a success that leaves a rendered result behind.
	fail = false
	require.NoError(t, w.Submit(t.Context()))
	require.True(t, w.MarkImageLoaded(sampleResult("b").OriginalImageURL))

	// Then a failure: no stale result may remain next to the error.
	fail = true
	require.Error(t, w.Submit(t.Context()))
	s := w.Snapshot()
	assert.Equal(t, "boom", s.ErrorMessage)
	assert.Empty(t, s.ReportText)
	assert.Empty(t, s.OriginalImageURL)
	assert.False(t, s.ImagesRendered)

	// And a success clears the error.
	fail = false
	require.NoError(t, w.Submit(t.Context()))
	assert.Empty(t, w.Snapshot().ErrorMessage)
	assert.Equal(t, 3, m.calls())
}

func TestSelectFile_ClearsErrorKeepsResults(t *testing.T) {
	fail := false
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		if fail {
			return nil, errors.New("Upload failed: Not Found")
		}
		return sampleResult("a"), nil
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))
	w.MarkImageLoaded(sampleResult("a").AnnotatedImageURL)

	w.SelectFile(scan("b.rvg"))
	s := w.Snapshot()
	assert.Equal(t, "b.rvg", s.SelectedFile.Name())
	assert.Equal(t, sampleResult("a").OriginalImageURL, s.OriginalImageURL, "results survive reselection")
	assert.Equal(t, sampleResult("a").Report, s.ReportText)
	assert.True(t, s.ImagesRendered)

	fail = true
	require.Error(t, w.Submit(t.Context()))
	require.NotEmpty(t, w.Snapshot().ErrorMessage)

	w.SelectFile(scan("c.dcm"))
	assert.Empty(t, w.Snapshot().ErrorMessage)
	assert.Equal(t, 2, m.calls(), "selection never calls the backend")
}

func TestSelectFile_LastSelectionWins(t *testing.T) {
	m := &mockAnalyzer{}
	w := New(m)

	w.SelectFile(scan("first.dcm"))
	w.SelectFile(scan("second.rvg"))

	s := w.Snapshot()
	require.NotNil(t, s.SelectedFile)
	assert.Equal(t, "second.rvg", s.SelectedFile.Name())
	assert.False(t, s.IsLoading)
	assert.False(t, s.HasResult())
	assert.Empty(t, s.ErrorMessage)
	assert.Equal(t, 0, m.calls(), "selecting must not call the analyzer")

	var sent string
	m.AnalyzeFunc = func(_ context.Context, f types.FileHandle) (*types.AnalysisResult, error) {
		sent = f.Name()
		return sampleResult("b"), nil
	}
	require.NoError(t, w.Submit(t.Context()))
	assert.Equal(t, 1, m.calls())
	assert.Equal(t, "second.rvg", sent)
}

func TestSelectFile_AnyExtension(t *testing.T) {
	w := New(&mockAnalyzer{})
	w.SelectFile(scan("photo.jpg"))
	require.NoError(t, w.Submit(t.Context()))
}

func TestMarkImageLoaded(t *testing.T) {
	n := 0
	m := &mockAnalyzer{AnalyzeFunc: func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		n++
		if n == 3 {
			return sampleResult("a"), nil // same URLs as the first submission
		}
		return sampleResult(string(rune('a' + n - 1))), nil
	}}
	c := metrics.NewCollector("s", "o", "", "")
	w := New(m, WithMetrics(c))

	assert.False(t, w.MarkImageLoaded(""), "nothing to load")
	assert.False(t, w.MarkImageLoaded("http://127.0.0.1:8000/converted/a.png"), "no current URL")

	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))
	first := w.Snapshot()

	assert.False(t, w.MarkImageLoaded("http://elsewhere/x.png"))
	assert.False(t, w.Snapshot().ImagesRendered)

	// Either image reveals both.
	assert.True(t, w.MarkImageLoaded(first.AnnotatedImageURL))
	assert.True(t, w.Snapshot().ImagesRendered)
	assert.False(t, w.MarkImageLoaded(first.OriginalImageURL), "already rendered")

	// New URLs hide the images again.
	require.NoError(t, w.Submit(t.Context()))
	second := w.Snapshot()
	assert.NotEqual(t, first.OriginalImageURL, second.OriginalImageURL)
	assert.False(t, second.ImagesRendered)
	assert.False(t, w.MarkImageLoaded(first.OriginalImageURL), "stale URL is ignored")
	assert.True(t, w.MarkImageLoaded(second.OriginalImageURL))

	// Resubmitting clears URLs, so even identical URLs need a fresh load.
	require.NoError(t, w.Submit(t.Context()))
	third := w.Snapshot()
	assert.Equal(t, first.OriginalImageURL, third.OriginalImageURL)
	assert.False(t, third.ImagesRendered)

	assert.Equal(t, int64(2), c.Snapshot().ImagesLoaded)
}

func TestSubmit_StaleResponseDiscarded(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	m := &mockAnalyzer{AnalyzeFunc: func(_ context.Context, f types.FileHandle) (*types.AnalysisResult, error) {
		if f.Name() == "slow.dcm" {
			close(firstStarted)
			<-releaseFirst
			return sampleResult("slow"), nil
		}
		return sampleResult("fast"), nil
	}}
	c := metrics.NewCollector("s", "o", "", "")
	var settled []uint64
	var hookMu sync.Mutex
	w := New(m, WithMetrics(c), WithSettleHook(func(s Settlement) {
		hookMu.Lock()
		settled = append(settled, s.Token)
		hookMu.Unlock()
	}))

	w.SelectFile(scan("slow.dcm"))
	firstErr := make(chan error, 1)
	go func() { firstErr <- w.Submit(context.Background()) }()
	<-firstStarted

	w.SelectFile(scan("fast.dcm"))
	require.NoError(t, w.Submit(t.Context()))
	assert.Equal(t, sampleResult("fast").OriginalImageURL, w.Snapshot().OriginalImageURL)

	close(releaseFirst)
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never returned")
	}

	s := w.Snapshot()
	assert.Equal(t, sampleResult("fast").OriginalImageURL, s.OriginalImageURL, "late response must not overwrite")
	assert.False(t, s.IsLoading)
	assert.Equal(t, int64(1), c.Snapshot().SubmissionsSuperseded)

	hookMu.Lock()
	assert.Equal(t, []uint64{2}, settled, "hooks only see applied settlements")
	hookMu.Unlock()
}

func TestSubmit_StaleDoesNotClearNewerLoading(t *testing.T) {
	firstGate := make(chan struct{})
	releaseSecond := make(chan struct{})
	secondStarted := make(chan struct{})
	m := &mockAnalyzer{AnalyzeFunc: func(_ context.Context, f types.FileHandle) (*types.AnalysisResult, error) {
		switch f.Name() {
		case "first.dcm":
			<-firstGate
		case "second.dcm":
			close(secondStarted)
			<-releaseSecond
		}
		return sampleResult(f.Name()), nil
	}}
	w := New(m)

	w.SelectFile(scan("first.dcm"))
	firstErr := make(chan error, 1)
	go func() { firstErr <- w.Submit(context.Background()) }()
	require.Eventually(t, func() bool { return m.calls() == 1 }, 5*time.Second, time.Millisecond)

	w.SelectFile(scan("second.dcm"))
	secondErr := make(chan error, 1)
	go func() { secondErr <- w.Submit(context.Background()) }()
	<-secondStarted

	close(firstGate)
	require.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.True(t, w.Snapshot().IsLoading, "newer submission still owns loading")

	close(releaseSecond)
	require.NoError(t, <-secondErr)
	assert.False(t, w.Snapshot().IsLoading)
}

func TestSubscribe(t *testing.T) {
	w := New(&mockAnalyzer{})
	var states []State
	cancel := w.Subscribe(func(s State) { states = append(states, s) })

	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))

	require.Len(t, states, 3)
	assert.False(t, states[0].IsLoading)
	assert.True(t, states[1].IsLoading, "loading is published before the call")
	assert.False(t, states[2].IsLoading)
	assert.NotEmpty(t, states[2].ReportText)

	cancel()
	cancel() // idempotent
	w.SelectFile(scan("b.dcm"))
	assert.Len(t, states, 3)
}

func TestSnapshot_IsCopy(t *testing.T) {
	w := New(&mockAnalyzer{})
	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))

	s := w.Snapshot()
	s.Predictions[0].Class = "mutated"
	s.ReportText = "mutated"

	assert.Equal(t, "caries", w.Snapshot().Predictions[0].Class)
	assert.NotEqual(t, "mutated", w.Snapshot().ReportText)
}

func TestSettleHook(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	var got []Settlement
	w := New(&mockAnalyzer{}, WithClock(clock), WithSettleHook(func(s Settlement) { got = append(got, s) }))

	require.ErrorIs(t, w.Submit(t.Context()), ErrNoFileSelected)
	assert.Empty(t, got, "advisories are not settlements")

	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))
	require.Len(t, got, 1)
	assert.True(t, got[0].Succeeded())
	assert.Equal(t, uint64(1), got[0].Token)
	assert.Equal(t, "a.dcm", got[0].File.Name())
	assert.Equal(t, 250*time.Millisecond, got[0].Duration)
	assert.False(t, got[0].StartedAt.IsZero())
}

func TestSubmit_ContextCanceled(t *testing.T) {
	m := &mockAnalyzer{AnalyzeFunc: func(ctx context.Context, _ types.FileHandle) (*types.AnalysisResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	w := New(m)
	w.SelectFile(scan("a.dcm"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := w.Submit(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, w.Snapshot().IsLoading)
	assert.Equal(t, context.Canceled.Error(), w.Snapshot().ErrorMessage)
}

func TestAnalyzerFunc(t *testing.T) {
	w := New(AnalyzerFunc(func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		return sampleResult("fn"), nil
	}))
	w.SelectFile(scan("a.dcm"))
	require.NoError(t, w.Submit(t.Context()))
	assert.Equal(t, sampleResult("fn").Report, w.Snapshot().ReportText)
}
