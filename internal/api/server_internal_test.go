package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
	"github.com/BTreeMap/NamePlay/internal/share"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidAge, http.StatusBadRequest},
		{models.ErrEmptyInput, http.StatusBadRequest},
		{errInvalidJSON, http.StatusBadRequest},
		{fmt.Errorf("page 9: %w", leaderboard.ErrPageOutOfRange), http.StatusBadRequest},
		{flow.ErrBusy, http.StatusConflict},
		{flow.ErrNotInResult, http.StatusConflict},
		{share.ErrNotConfigured, http.StatusNotImplemented},
		{&nameapi.StatusError{StatusCode: 503}, http.StatusBadGateway},
		{nameapi.ErrMalformedResponse, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestReapIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewServer(flow.NewStaticGenerator(models.FallbackResult()), nil, nil, nil,
		WithSessionTTL(time.Minute),
		WithTimerFactory(func() flow.Timer { return flow.NewManualTimer() }))
	s.now = func() time.Time { return now }

	old := s.createSession()
	now = now.Add(30 * time.Second)
	fresh := s.createSession()
	if s.SessionCount() != 2 {
		t.Fatalf("sessions = %d, want 2", s.SessionCount())
	}

	now = now.Add(45 * time.Second)
	s.reapIdle()
	if _, ok := s.lookup(old.dialogue.ID()); ok {
		t.Error("idle session survived the reaper")
	}
	if _, ok := s.lookup(fresh.dialogue.ID()); !ok {
		t.Error("recent session was reaped")
	}
	if err := old.dialogue.SubmitForm("20", models.GenderMale); !errors.Is(err, flow.ErrClosed) {
		t.Errorf("reaped session accepted input: %v", err)
	}
}

func TestLookupTouchesSession(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewServer(flow.NewStaticGenerator(models.FallbackResult()), nil, nil, nil,
		WithSessionTTL(time.Minute),
		WithTimerFactory(func() flow.Timer { return flow.NewManualTimer() }))
	s.now = func() time.Time { return now }

	cs := s.createSession()
	now = now.Add(50 * time.Second)
	s.lookup(cs.dialogue.ID())
	now = now.Add(50 * time.Second)
	s.reapIdle()
	if s.SessionCount() != 1 {
		t.Error("session touched by lookup was reaped")
	}
}
