package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/agent"
	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/config"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeService) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeService) Stop() {
	f.stopped = true
}

type fakeHTTP struct {
	listenCalled chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		listenCalled: make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

func (f *fakeHTTP) ListenAndServe(string) error {
	close(f.listenCalled)
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdownCh) })
	return nil
}

func TestMain_StartsServicesAndHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{Server: config.ServerConfig{Addr: "127.0.0.1:0"}}
	outbox := &fakeService{}
	auditor := &fakeService{}
	httpSrv := newFakeHTTP()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, cfg, []backgroundService{outbox, auditor}, httpSrv)
	}()

	select {
	case <-httpSrv.listenCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not start")
	}

	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runWithComponents did not exit after cancellation")
	}

	assert.True(t, outbox.started)
	assert.True(t, auditor.started)
	assert.True(t, outbox.stopped)
	assert.True(t, auditor.stopped)
}

func TestMain_StopsStartedServicesOnFailure(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Addr: "127.0.0.1:0"}}
	outbox := &fakeService{}
	auditor := &fakeService{startErr: errors.New("bad cron")}

	err := runWithComponents(context.Background(), cfg, []backgroundService{outbox, auditor}, newFakeHTTP())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad cron")
	assert.True(t, outbox.stopped)
	assert.False(t, auditor.stopped)
}

type scriptedAgent struct {
	replies []string
	got     []agent.ChatRequest
}

func (s *scriptedAgent) Chat(context.Context, agent.ChatRequest) (*agent.Reply, error) {
	return nil, errors.New("not used")
}

func (s *scriptedAgent) Stream(_ context.Context, req agent.ChatRequest, emit agent.Emitter) error {
	s.got = append(s.got, req)
	reply := s.replies[len(s.got)-1]
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := emit(agent.Event{Type: agent.EventTextDelta, Delta: word}); err != nil {
			return err
		}
	}
	return emit(agent.Event{Type: agent.EventFinish, FinishReason: "stop"})
}

func TestRunChat_KeepsHistory(t *testing.T) {
	t.Parallel()

	a := &scriptedAgent{replies: []string{"The RAV4 fits.", "It seats five."}}
	in := strings.NewReader("I want an SUV\n\nhow many seats?\nquit\nignored\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), a, llm.NewHistory(chatHistoryWindow), in, &out))

	require.Len(t, a.got, 2)
	assert.Empty(t, a.got[0].ChatHistory)
	assert.Equal(t, "how many seats?", a.got[1].UserMessage)
	assert.Equal(t, []agent.HistoryMessage{
		{Role: "user", Content: "I want an SUV"},
		{Role: "assistant", Content: "The RAV4 fits."},
	}, a.got[1].ChatHistory)
	assert.Contains(t, out.String(), "The RAV4 fits.")
	assert.Contains(t, out.String(), "It seats five.")
}

func TestRunChat_BoundsHistory(t *testing.T) {
	t.Parallel()

	a := &scriptedAgent{replies: []string{"one", "two", "three", "four"}}
	in := strings.NewReader("a\nb\nreset\nc\nd\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), a, llm.NewHistory(2), in, &out))

	require.Len(t, a.got, 4)
	assert.Equal(t, []agent.HistoryMessage{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "one"},
	}, a.got[1].ChatHistory)
	assert.Empty(t, a.got[2].ChatHistory, "reset clears the window")
	assert.Equal(t, []agent.HistoryMessage{
		{Role: "user", Content: "c"},
		{Role: "assistant", Content: "three"},
	}, a.got[3].ChatHistory)
	assert.Contains(t, out.String(), "history cleared")
}

func TestReadTrims(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "trims.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"trim_id":7,"model":"Camry","msrp":28400}]`), 0o644))
	cards, err := readTrims(good)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Camry", *cards[0].Model)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"model":"Camry"}]`), 0o644))
	_, err = readTrims(bad)
	assert.ErrorContains(t, err, "no trim_id")
}

type stubCollaborator struct {
	err error
}

func (s stubCollaborator) CreateBooking(context.Context, *identity.User, booking.CreateRequest) (booking.Booking, error) {
	return booking.Booking{ID: "b-1"}, s.err
}

func TestObservedBookings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want []bool
	}{
		{name: "success", want: []bool{true}},
		{name: "validation is not counted", err: apperr.New(apperr.KindValidation, "bad"), want: nil},
		{name: "auth is not counted", err: apperr.New(apperr.KindAuth, "who"), want: nil},
		{name: "backend failure", err: apperr.New(apperr.KindInternal, "db down"), want: []bool{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var seen []bool
			o := observedBookings{next: stubCollaborator{err: tt.err}, observe: func(ok bool) { seen = append(seen, ok) }}
			_, err := o.CreateBooking(context.Background(), &identity.User{ID: "u"}, booking.CreateRequest{})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestUnavailableModel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	model, err := newModel(context.Background(), cfg)
	require.NoError(t, err)

	_, err = model.ChatCompletionWithTools(context.Background(), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}
