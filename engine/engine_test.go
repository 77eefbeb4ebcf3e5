package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/logging"
	"github.com/hupe1980/modelmux/model"
	"github.com/hupe1980/modelmux/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModel for testing dispatch without a provider.
type MockModel struct{ mock.Mock }

func (m *MockModel) Invoke(ctx context.Context, msgs []core.Message) (core.Message, error) {
	args := m.Called(ctx, msgs)
	return args.Get(0).(core.Message), args.Error(1)
}

func (m *MockModel) Stream(ctx context.Context, msgs []core.Message) (<-chan model.Chunk, <-chan error) {
	args := m.Called(ctx, msgs)
	return args.Get(0).(<-chan model.Chunk), args.Get(1).(<-chan error)
}

func (m *MockModel) FormatMessages(tmpl *prompt.Template, vars map[string]any) ([]core.Message, error) {
	args := m.Called(tmpl, vars)
	return args.Get(0).([]core.Message), args.Error(1)
}

func (m *MockModel) Info() model.Info {
	return model.Info{Name: "mock", Provider: "mock"}
}

type recorder struct{ calls []string }

func (r *recorder) op(err error) Operation {
	return func(_ context.Context, name string, _ model.Model) error {
		r.calls = append(r.calls, name)
		return err
	}
}

func newTestEngine(logBuf, outBuf *bytes.Buffer) *Engine {
	return New(func(o *Options) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text", Output: logBuf})
		o.Output = outBuf
	})
}

func TestEngine_Register(t *testing.T) {
	e := New()

	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))
	assert.ErrorIs(t, e.Register("fake", model.NewFakeModel("again")), core.ErrDuplicateBackend)
	assert.ErrorIs(t, e.Register("", model.NewFakeModel("x")), core.ErrInvalidBackend)
	assert.ErrorIs(t, e.Register("nil", nil), core.ErrInvalidBackend)

	assert.Equal(t, 1, e.Len())
	m, ok := e.Lookup("fake")
	assert.True(t, ok)
	assert.Equal(t, "fake", m.Info().Name)
}

func TestEngine_NamesKeepRegistrationOrder(t *testing.T) {
	e := New()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, e.Register(n, model.NewFakeModel(n)))
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, e.Names())
}

func TestEngine_RegistrySealedAfterRun(t *testing.T) {
	e := New(func(o *Options) { o.Output = &bytes.Buffer{} })
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	e.RunAll(context.Background(), (&recorder{}).op(nil))

	assert.ErrorIs(t, e.Register("late", model.NewFakeModel("late")), core.ErrRegistrySealed)
}

func TestEngine_RunOneMissingBackend(t *testing.T) {
	var logBuf, outBuf bytes.Buffer
	e := newTestEngine(&logBuf, &outBuf)
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	rec := &recorder{}
	assert.NotPanics(t, func() { e.RunOne(context.Background(), "missing", rec.op(nil)) })

	assert.Empty(t, rec.calls)
	assert.Contains(t, logBuf.String(), "backend not found")
	assert.Contains(t, logBuf.String(), "backend=missing")
	assert.Empty(t, outBuf.String(), "no banner for a missing backend")
}

func TestEngine_RunAllSingleFake(t *testing.T) {
	var logBuf, outBuf bytes.Buffer
	e := newTestEngine(&logBuf, &outBuf)
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	rec := &recorder{}
	e.RunAll(context.Background(), rec.op(nil))
	assert.Equal(t, []string{"fake"}, rec.calls)
	assert.Contains(t, outBuf.String(), "=== fake ===")

	other := &recorder{}
	e.RunOne(context.Background(), "missing", other.op(nil))
	assert.Empty(t, other.calls)
	assert.Contains(t, logBuf.String(), "backend not found")
}

func TestEngine_RunAllIsolatesFailures(t *testing.T) {
	var logBuf, outBuf bytes.Buffer
	e := newTestEngine(&logBuf, &outBuf)
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, e.Register(n, model.NewFakeModel(n)))
	}

	var calls []string
	e.RunAll(context.Background(), func(_ context.Context, name string, _ model.Model) error {
		calls = append(calls, name)
		if name == "a" {
			return errors.New("rate limited")
		}
		if name == "b" {
			panic("nil pointer in provider")
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	logs := logBuf.String()
	assert.Contains(t, logs, "run failed")
	assert.Contains(t, logs, "rate limited")
	assert.Contains(t, logs, "backend=a")
	assert.Contains(t, logs, "backend=b")
	assert.Contains(t, logs, "nil pointer in provider")
	assert.Contains(t, logs, "run_id=")

	out := outBuf.String()
	assert.Less(t, bytes.Index(outBuf.Bytes(), []byte("=== a ===")), bytes.Index(outBuf.Bytes(), []byte("=== c ===")), out)
}

// brokenInfoModel is a backend whose metadata accessor panics.
type brokenInfoModel struct{ *model.FakeModel }

func (brokenInfoModel) Info() model.Info { panic("info unavailable") }

func TestEngine_RunAllIsolatesPanickingInfo(t *testing.T) {
	var logBuf, outBuf bytes.Buffer
	e := newTestEngine(&logBuf, &outBuf)
	summary := NewSummary()
	for _, cb := range summary.Callbacks() {
		e.AddCallback(cb)
	}
	require.NoError(t, e.Register("bad", brokenInfoModel{model.NewFakeModel("bad")}))
	require.NoError(t, e.Register("good", model.NewFakeModel("good")))

	var calls []string
	assert.NotPanics(t, func() {
		e.RunAll(context.Background(), func(_ context.Context, name string, _ model.Model) error {
			calls = append(calls, name)
			return nil
		})
	})

	assert.Equal(t, []string{"good"}, calls)
	assert.Contains(t, logBuf.String(), "info unavailable")
	assert.Contains(t, logBuf.String(), "backend=bad")

	ok, failed, _ := summary.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestEngine_PanickingBannerIsContained(t *testing.T) {
	var logBuf bytes.Buffer
	e := New(func(o *Options) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Output: &logBuf})
		o.Output = &bytes.Buffer{}
		o.Banner = func(name string) string {
			if name == "a" {
				panic("bad banner")
			}
			return name
		}
	})
	require.NoError(t, e.Register("a", model.NewFakeModel("a")))
	require.NoError(t, e.Register("b", model.NewFakeModel("b")))

	var calls []string
	assert.NotPanics(t, func() {
		e.RunAll(context.Background(), func(_ context.Context, name string, _ model.Model) error {
			calls = append(calls, name)
			return nil
		})
	})

	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Contains(t, logBuf.String(), "banner failed")
}

func TestEngine_Invoke(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	err := e.Invoke(context.Background(), "missing", (&recorder{}).op(nil))
	assert.ErrorIs(t, err, core.ErrBackendNotFound)

	err = e.Invoke(context.Background(), "fake", (&recorder{}).op(boom))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "backend fake")

	err = e.Invoke(context.Background(), "fake", func(context.Context, string, model.Model) error { panic("kaboom") })
	assert.ErrorIs(t, err, core.ErrOperationPanicked)

	assert.Error(t, e.Invoke(context.Background(), "fake", nil))
	assert.NoError(t, e.Invoke(context.Background(), "fake", (&recorder{}).op(nil)))
}

func TestEngine_OperationReceivesBackend(t *testing.T) {
	mm := &MockModel{}
	mm.On("Invoke", mock.Anything, mock.Anything).Return(core.NewAssistantMessage("pong"), nil).Once()

	e := New(func(o *Options) { o.Output = &bytes.Buffer{} })
	require.NoError(t, e.Register("mock", mm))

	var got string
	e.RunOne(context.Background(), "mock", func(ctx context.Context, _ string, m model.Model) error {
		resp, err := m.Invoke(ctx, []core.Message{core.NewHumanMessage("ping")})
		got = resp.Content
		return err
	})

	assert.Equal(t, "pong", got)
	mm.AssertExpectations(t)
}

func TestEngine_Callbacks(t *testing.T) {
	var events []string
	track := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			events = append(events, string(ct)+":"+cc.Backend)
			assert.NotEmpty(t, cc.RunID)
			return nil
		})
	}

	e := New(func(o *Options) {
		o.Output = &bytes.Buffer{}
		o.Callbacks = []Callback{track(CallbackBeforeRun), track(CallbackAfterRun), track(CallbackOnError)}
	})
	e.AddCallback(track(CallbackOnNotFound))
	require.NoError(t, e.Register("ok", model.NewFakeModel("ok")))
	require.NoError(t, e.Register("bad", model.NewFakeModel("bad")))

	e.RunAll(context.Background(), func(_ context.Context, name string, _ model.Model) error {
		if name == "bad" {
			return errors.New("fail")
		}
		return nil
	})
	e.RunOne(context.Background(), "ghost", (&recorder{}).op(nil))

	assert.Equal(t, []string{
		"before_run:ok", "after_run:ok",
		"before_run:bad", "on_error:bad", "after_run:bad",
		"on_not_found:ghost",
	}, events)
}

func TestEngine_BeforeRunErrorSkipsOperation(t *testing.T) {
	var logBuf bytes.Buffer
	e := newTestEngine(&logBuf, &bytes.Buffer{})
	e.AddCallback(NewFunctionCallback(CallbackBeforeRun, func(context.Context, *CallbackContext) error {
		return errors.New("quota exhausted")
	}))
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	rec := &recorder{}
	e.RunAll(context.Background(), rec.op(nil))

	assert.Empty(t, rec.calls)
	assert.Contains(t, logBuf.String(), "quota exhausted")
}

func TestEngine_PanickingCallbackIsContained(t *testing.T) {
	e := New(func(o *Options) { o.Output = &bytes.Buffer{} })
	e.AddCallback(NewFunctionCallback(CallbackAfterRun, func(context.Context, *CallbackContext) error {
		panic("callback bug")
	}))
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	rec := &recorder{}
	assert.NotPanics(t, func() { e.RunAll(context.Background(), rec.op(nil)) })
	assert.Equal(t, []string{"fake"}, rec.calls)
}

func TestEngine_CustomBanner(t *testing.T) {
	var out bytes.Buffer
	e := New(func(o *Options) {
		o.Output = &out
		o.Banner = func(name string) string { return "[" + name + "]\n" }
	})
	require.NoError(t, e.Register("fake", model.NewFakeModel("fake")))

	e.RunAll(context.Background(), (&recorder{}).op(nil))
	assert.Equal(t, "[fake]\n", out.String())
}

func TestSummary(t *testing.T) {
	s := NewSummary()
	e := New(func(o *Options) {
		o.Output = &bytes.Buffer{}
		o.Callbacks = s.Callbacks()
	})
	require.NoError(t, e.Register("ok", model.NewFakeModel("ok")))
	require.NoError(t, e.Register("bad", model.NewFakeModel("bad")))

	e.RunAll(context.Background(), func(_ context.Context, name string, _ model.Model) error {
		if name == "bad" {
			return errors.New("fail")
		}
		return nil
	})
	e.RunOne(context.Background(), "ghost", (&recorder{}).op(nil))

	ok, failed, notFound := s.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, notFound)
	assert.Equal(t, "3 runs: 1 succeeded, 1 failed, 1 not found", s.String())
}

func TestLoggingCallback(t *testing.T) {
	var msgs []string
	cb := NewLoggingCallback(CallbackOnError, func(m string) { msgs = append(msgs, m) })

	err := cb.Execute(context.Background(), &CallbackContext{Backend: "x", RunID: "r1", Err: errors.New("bad"), CallbackType: CallbackOnError})
	require.NoError(t, err)
	assert.Equal(t, []string{"[on_error] backend=x run=r1 error=bad"}, msgs)
	assert.NoError(t, NewLoggingCallback(CallbackOnError, nil).Execute(context.Background(), &CallbackContext{}))
}

func TestWithTimeout(t *testing.T) {
	slow := model.NewFakeModel("slow", func(o *model.FakeOptions) { o.Block = true })
	op := func(ctx context.Context, _ string, m model.Model) error {
		_, err := m.Invoke(ctx, []core.Message{core.NewHumanMessage("hi")})
		return err
	}

	var logBuf bytes.Buffer
	e := newTestEngine(&logBuf, &bytes.Buffer{})
	require.NoError(t, e.Register("slow", slow))
	require.NoError(t, e.Register("fast", model.NewFakeModel("fast")))

	var ran []string
	e.RunAll(context.Background(), WithTimeout(func(ctx context.Context, name string, m model.Model) error {
		ran = append(ran, name)
		return op(ctx, name, m)
	}, 20*time.Millisecond))

	assert.Equal(t, []string{"slow", "fast"}, ran)
	assert.Contains(t, logBuf.String(), "context deadline exceeded")

	assert.NotNil(t, WithTimeout(op, 0))
}
