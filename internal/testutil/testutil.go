// Package testutil provides common test utilities and helpers for NamePlay tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/BTreeMap/NamePlay/internal/api"
	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/share"
	"github.com/BTreeMap/NamePlay/internal/store"
)

// TB is the subset of testing.TB used by the assertion helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// SampleResult is the generation result returned by test servers.
func SampleResult() models.GenerationResult {
	return models.GenerationResult{
		Names: []string{"Alex", "Sam"},
		Reasons: map[string]map[string]string{
			"Alex": {"questionOne": "에너지가 넘치는 성격"},
			"Sam":  {},
		},
		Counts:     []int{3, 1},
		TotalCount: 4,
	}
}

// FakeLister serves a fixed number of ranking pages.
type FakeLister struct {
	mu         sync.Mutex
	TotalPages int
	Err        error
	Calls      int
}

func (f *FakeLister) ListNames(ctx context.Context, page, size int, sort string) (*models.NamesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	items := make([]models.NameCount, 0, size)
	for i := 0; i < size && i < 2; i++ {
		items = append(items, models.NameCount{Name: fmt.Sprintf("name-%d-%d", page, i), Count: 100 - page*size - i})
	}
	return &models.NamesResponse{
		Content:       items,
		TotalPages:    f.TotalPages,
		TotalElements: f.TotalPages * size,
		Number:        page,
		Size:          size,
	}, nil
}

// Timers collects the manual timers handed to sessions.
type Timers struct {
	mu     sync.Mutex
	timers []*flow.ManualTimer
}

// New creates a timer and keeps it for later firing.
func (t *Timers) New() flow.Timer {
	m := flow.NewManualTimer()
	t.mu.Lock()
	t.timers = append(t.timers, m)
	t.mu.Unlock()
	return m
}

// FireAll drains every collected timer, returning the number of callbacks run.
func (t *Timers) FireAll() int {
	t.mu.Lock()
	timers := append([]*flow.ManualTimer(nil), t.timers...)
	t.mu.Unlock()
	n := 0
	for _, m := range timers {
		n += m.FireAll()
	}
	return n
}

// Fixture is an API server wired to in-memory collaborators.
type Fixture struct {
	Server    *api.Server
	Handler   http.Handler
	Generator *flow.StaticGenerator
	Lister    *FakeLister
	Store     *store.InMemoryStore
	Sender    *share.MockSender
	Timers    *Timers
}

// NewTestServer creates a test API server with in-memory dependencies and manual timers.
func NewTestServer(opts ...api.Option) *Fixture {
	f := &Fixture{
		Generator: flow.NewStaticGenerator(SampleResult()),
		Lister:    &FakeLister{TotalPages: 3},
		Store:     store.NewInMemoryStore(),
		Sender:    share.NewMockSender(),
		Timers:    &Timers{},
	}
	opts = append([]api.Option{api.WithTimerFactory(f.Timers.New)}, opts...)
	f.Server = api.NewServer(f.Generator, f.Lister, f.Store, share.NewSharer(f.Sender, f.Store), opts...)
	f.Handler = f.Server.Handler()
	return f
}

// Do sends a request through the fixture handler.
func (f *Fixture) Do(t TB, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.Handler.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// APIEnvelope is the decoded response envelope with the result left raw.
type APIEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// AssertJSONResponse decodes the response envelope and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) APIEnvelope {
	t.Helper()
	var env APIEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return env
	}
	if env.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, env.Status, env.Message)
	}
	return env
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertFeedbackCount validates the number of feedback entries in the store.
func AssertFeedbackCount(t TB, st store.Store, expected int, context string) {
	t.Helper()
	entries, err := st.ListFeedback()
	if err != nil {
		t.Fatalf("%s: failed to list feedback: %v", context, err)
		return
	}
	if len(entries) != expected {
		t.Errorf("%s: expected %d feedback entries, got %d", context, expected, len(entries))
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
