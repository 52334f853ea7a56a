package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/NamePlay/internal/api"
	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
	"github.com/BTreeMap/NamePlay/internal/testutil"
)

type sessionView struct {
	ID            string                   `json:"id"`
	State         models.DialogueState     `json:"state"`
	Messages      []models.Message         `json:"messages"`
	Typing        bool                     `json:"typing"`
	AwaitingInput bool                     `json:"awaiting_input"`
	QuestionIndex int                      `json:"question_index"`
	Result        *models.GenerationResult `json:"result"`
	ShareText     string                   `json:"share_text"`
	ShareEnabled  bool                     `json:"share_enabled"`
}

type leaderboardView struct {
	Rows []struct {
		Rank  int    `json:"rank"`
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"rows"`
	PageIndex  int  `json:"page_index"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder, status models.APIStatus) sessionView {
	t.Helper()
	env := testutil.AssertJSONResponse(t, rr, status)
	var v sessionView
	testutil.MustUnmarshalJSON(t, env.Result, &v)
	return v
}

func createSession(t *testing.T, f *testutil.Fixture) sessionView {
	t.Helper()
	rr := f.Do(t, http.MethodPost, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	return decodeView(t, rr, models.APIStatusOK)
}

// runDialogue drives a fresh session to the result step.
func runDialogue(t *testing.T, f *testutil.Fixture, id string) sessionView {
	t.Helper()
	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/form", models.FormRequest{Age: "27", Gender: models.GenderFemale})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "form")
	return runDialogueFromChat(t, f, id)
}

func TestCreateSession(t *testing.T) {
	f := testutil.NewTestServer()
	v := createSession(t, f)
	if v.ID == "" || v.State != models.StateForm || len(v.Messages) != 0 {
		t.Errorf("new session view = %+v", v)
	}
	if !v.ShareEnabled {
		t.Error("share should be enabled with a sender configured")
	}
	if f.Server.SessionCount() != 1 {
		t.Errorf("session count = %d", f.Server.SessionCount())
	}
}

func TestUnknownSession(t *testing.T) {
	f := testutil.NewTestServer()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sessions/missing"},
		{http.MethodDelete, "/sessions/missing"},
		{http.MethodPost, "/sessions/missing/reset"},
		{http.MethodGet, "/sessions/missing/leaderboard"},
	} {
		rr := f.Do(t, tc.method, tc.path, nil)
		testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, tc.method+" "+tc.path)
	}
}

func TestFormValidation(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID

	cases := []models.FormRequest{
		{Age: "", Gender: models.GenderMale},
		{Age: "abc", Gender: models.GenderMale},
		{Age: "200", Gender: models.GenderMale},
		{Age: "20", Gender: ""},
		{Age: "20", Gender: "robot"},
	}
	for _, req := range cases {
		rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/form", req)
		testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, fmt.Sprintf("form %+v", req))
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/form", strings.NewReader("{not json"))
	f.Handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed JSON")
}

func TestFullDialogueOverHTTP(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/form", models.FormRequest{Age: "27", Gender: models.GenderFemale})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "form")
	v := decodeView(t, rr, models.APIStatusOK)
	if v.State != models.StateChat || len(v.Messages) != 1 || !v.Typing {
		t.Fatalf("after form: %+v", v)
	}

	// The first question is still behind the typing delay.
	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/messages", models.MessageRequest{Input: "too early"})
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "answer while typing")

	v = runDialogueFromChat(t, f, id)
	if v.State != models.StateResult {
		t.Fatalf("state = %q, want result", v.State)
	}
	if v.Result == nil || v.Result.TopName() != "Alex" {
		t.Fatalf("result = %+v", v.Result)
	}
	if v.ShareText != "내 영어 이름을 확인해보세요: Alex!" {
		t.Errorf("share text = %q", v.ShareText)
	}
	last := v.Messages[len(v.Messages)-1]
	if last.Content != flow.ConfirmationText || last.Kind != models.MessageKindResult {
		t.Errorf("last message = %+v", last)
	}
	if f.Generator.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", f.Generator.Calls())
	}
}

func runDialogueFromChat(t *testing.T, f *testutil.Fixture, id string) sessionView {
	t.Helper()
	f.Timers.FireAll()
	for i := 1; i <= 5; i++ {
		rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/messages", models.MessageRequest{Input: fmt.Sprintf("answer %d", i)})
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, fmt.Sprintf("answer %d", i))
		f.Timers.FireAll()
	}
	rr := f.Do(t, http.MethodGet, "/sessions/"+id, nil)
	return decodeView(t, rr, models.APIStatusOK)
}

func TestBlankMessageRejected(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID
	f.Do(t, http.MethodPost, "/sessions/"+id+"/form", models.FormRequest{Age: "30", Gender: models.GenderMale})
	f.Timers.FireAll()

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/messages", models.MessageRequest{Input: "   "})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "blank input")
}

func TestLongMessageTruncated(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID
	f.Do(t, http.MethodPost, "/sessions/"+id+"/form", models.FormRequest{Age: "30", Gender: models.GenderMale})
	f.Timers.FireAll()

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/messages", models.MessageRequest{Input: strings.Repeat("x", 80)})
	v := decodeView(t, rr, models.APIStatusOK)
	last := v.Messages[len(v.Messages)-1]
	if last.Sender != models.SenderUser || len([]rune(last.Content)) != models.MaxAnswerLength {
		t.Errorf("stored answer = %+v", last)
	}
}

func TestFeedback(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/feedback", models.FeedbackRequest{Rating: "😍"})
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "feedback before result")

	runDialogue(t, f, id)

	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/feedback", models.FeedbackRequest{Rating: "🤷"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "unknown rating")

	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/feedback", models.FeedbackRequest{Rating: "😍"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "feedback")
	env := testutil.AssertJSONResponse(t, rr, models.APIStatusRecorded)
	if env.Message != models.RatingLove.Acknowledgement() {
		t.Errorf("acknowledgement = %q", env.Message)
	}
	testutil.AssertFeedbackCount(t, f.Store, 1, "after rating")

	entries, _ := f.Store.ListFeedback()
	if entries[0].SessionID != id || entries[0].Name != "Alex" {
		t.Errorf("feedback entry = %+v", entries[0])
	}
}

func TestShare(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/share", models.ShareRequest{To: "+15551234"})
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "share before result")

	runDialogue(t, f, id)

	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/share", models.ShareRequest{To: ""})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing recipient")

	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/share", models.ShareRequest{To: "+15551234"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "share")
	if len(f.Sender.SentMessages) != 1 || f.Sender.SentMessages[0].Body != "내 영어 이름을 확인해보세요: Alex!" {
		t.Errorf("sent = %+v", f.Sender.SentMessages)
	}
	receipts, _ := f.Store.ListShareReceipts()
	if len(receipts) != 1 || receipts[0].Status != models.ShareStatusSent {
		t.Errorf("receipts = %+v", receipts)
	}

	f.Sender.Err = fmt.Errorf("carrier down")
	rr = f.Do(t, http.MethodPost, "/sessions/"+id+"/share", models.ShareRequest{To: "+15551234"})
	testutil.AssertHTTPStatus(t, http.StatusBadGateway, rr.Code, "share send failure")
}

func TestShareNotConfigured(t *testing.T) {
	srv := api.NewServer(flow.NewStaticGenerator(testutil.SampleResult()), &testutil.FakeLister{TotalPages: 1}, nil, nil)
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", nil))
	var env testutil.APIEnvelope
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &env)
	var v sessionView
	testutil.MustUnmarshalJSON(t, env.Result, &v)
	if v.ShareEnabled {
		t.Error("share reported enabled without a sender")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+v.ID+"/share", models.ShareRequest{To: "+1555"}))
	testutil.AssertHTTPStatus(t, http.StatusNotImplemented, rr.Code, "share without sender")
	srv.Close()
}

func TestLeaderboard(t *testing.T) {
	f := testutil.NewTestServer(api.WithPageSize(10))
	id := createSession(t, f).ID

	rr := f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "leaderboard")
	env := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	var lb leaderboardView
	testutil.MustUnmarshalJSON(t, env.Result, &lb)
	if lb.PageIndex != 0 || lb.TotalPages != 3 || len(lb.Rows) != 2 || lb.Rows[0].Rank != 1 || !lb.HasNext || lb.HasPrev {
		t.Errorf("page 0 = %+v", lb)
	}

	rr = f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard?page=2", nil)
	env = testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	testutil.MustUnmarshalJSON(t, env.Result, &lb)
	if lb.PageIndex != 2 || lb.Rows[0].Rank != 21 || lb.HasNext {
		t.Errorf("page 2 = %+v", lb)
	}

	for _, q := range []string{"3", "-1"} {
		rr = f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard?page="+q, nil)
		testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "page "+q)
	}
	rr = f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard?page=abc", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "page abc")

	calls := f.Lister.Calls
	if calls != 2 {
		t.Errorf("lister calls = %d, want 2", calls)
	}

	// Omitted page reloads the current one.
	f.Lister.Err = &nameapi.StatusError{StatusCode: http.StatusServiceUnavailable}
	rr = f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadGateway, rr.Code, "upstream failure")
}

func TestResetAndDelete(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID
	runDialogue(t, f, id)

	rr := f.Do(t, http.MethodPost, "/sessions/"+id+"/reset", nil)
	v := decodeView(t, rr, models.APIStatusOK)
	if v.State != models.StateForm || len(v.Messages) != 0 || v.Result != nil {
		t.Errorf("after reset: %+v", v)
	}

	rr = f.Do(t, http.MethodDelete, "/sessions/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete")
	rr = f.Do(t, http.MethodGet, "/sessions/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "get after delete")
	if f.Server.SessionCount() != 0 {
		t.Errorf("session count = %d", f.Server.SessionCount())
	}
}

func TestCORSPreflight(t *testing.T) {
	f := testutil.NewTestServer()
	rr := f.Do(t, http.MethodOptions, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "preflight")
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestHealthz(t *testing.T) {
	f := testutil.NewTestServer()
	createSession(t, f)
	rr := f.Do(t, http.MethodGet, "/healthz", nil)
	env := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	var body map[string]int
	if err := json.Unmarshal(env.Result, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["sessions"] != 1 {
		t.Errorf("sessions = %d", body["sessions"])
	}
}

func TestMetrics(t *testing.T) {
	f := testutil.NewTestServer()
	id := createSession(t, f).ID
	runDialogue(t, f, id)
	f.Do(t, http.MethodPost, "/sessions/"+id+"/feedback", models.FeedbackRequest{Rating: "love"})
	f.Do(t, http.MethodGet, "/sessions/"+id+"/leaderboard?page=7", nil)

	rr := f.Do(t, http.MethodGet, "/metrics", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	body := rr.Body.String()
	for _, want := range []string{
		"nameplay_sessions_created_total 1",
		"nameplay_sessions_active 1",
		`nameplay_feedback_total{rating="love"} 1`,
		`nameplay_leaderboard_loads_total{outcome="out_of_range"} 1`,
		`nameplay_http_requests_total{code="201",route="POST /sessions"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
