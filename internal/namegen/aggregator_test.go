package namegen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
)

type mockService struct {
	resp  *models.GenerationResponse
	err   error
	calls int
}

func (m *mockService) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	m.calls++
	return m.resp, m.err
}

func intPtr(i int) *int { return &i }

func assertFallback(t *testing.T, got models.GenerationResult) {
	t.Helper()
	if !reflect.DeepEqual(got, models.FallbackResult()) {
		t.Fatalf("expected fallback result, got %+v", got)
	}
	if got.TotalCount != 1 || len(got.Names) != 1 || got.Names[0] != "Unknown" {
		t.Fatalf("fallback shape wrong: %+v", got)
	}
}

func TestAggregator_ServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := nameapi.NewClient(nameapi.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	agg := NewAggregator(client)

	got := agg.Generate(context.Background(), models.NewGenerationRequest(models.NewAnswerRecord()))
	assertFallback(t, got)
	if got.Reasons["Unknown"]["error"] != models.FallbackExplanation {
		t.Errorf("fallback reason = %v", got.Reasons)
	}
}

func TestAggregator_SingleAttempt(t *testing.T) {
	svc := &mockService{err: errors.New("down")}
	agg := NewAggregator(svc)

	assertFallback(t, agg.Generate(context.Background(), models.GenerationRequest{}))
	if svc.calls != 1 {
		t.Errorf("calls = %d, want 1", svc.calls)
	}
}

func TestAggregator_NilService(t *testing.T) {
	assertFallback(t, NewAggregator(nil).Generate(context.Background(), models.GenerationRequest{}))
}

func TestAggregator_EmptyNamesIsNotFailure(t *testing.T) {
	tests := []struct {
		name  string
		resp  *models.GenerationResponse
		total int
	}{
		{"empty object", &models.GenerationResponse{}, 0},
		{"empty names with total", &models.GenerationResponse{Names: []string{}, TotalCount: intPtr(12)}, 12},
		{"blank legacy name", &models.GenerationResponse{Name: "  ", Explanation: "orphan"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAggregator(&mockService{resp: tt.resp}).Generate(context.Background(), models.GenerationRequest{})
			want := models.GenerationResult{
				Names:      []string{},
				Reasons:    map[string]map[string]string{},
				Counts:     []int{},
				TotalCount: tt.total,
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %+v, want %+v", got, want)
			}
			if got.TopName() != "" {
				t.Errorf("TopName = %q, want empty", got.TopName())
			}
		})
	}
}

func TestAggregator_Success(t *testing.T) {
	svc := &mockService{resp: &models.GenerationResponse{
		Names:      []string{"Alex", "Sam"},
		Reasons:    map[string]map[string]string{"Alex": {"mbti": "outgoing"}},
		NamesCount: []int{5, 2},
		TotalCount: intPtr(9),
	}}
	got := NewAggregator(svc).Generate(context.Background(), models.GenerationRequest{})

	want := models.GenerationResult{
		Names:      []string{"Alex", "Sam"},
		Reasons:    map[string]map[string]string{"Alex": {"mbti": "outgoing"}, "Sam": {}},
		Counts:     []int{5, 2},
		TotalCount: 9,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     *models.GenerationResponse
		want    models.GenerationResult
		wantErr bool
	}{
		{
			name:    "nil payload",
			raw:     nil,
			wantErr: true,
		},
		{
			name: "counts padded",
			raw:  &models.GenerationResponse{Names: []string{"A", "B", "C"}, NamesCount: []int{4}},
			want: models.GenerationResult{
				Names:      []string{"A", "B", "C"},
				Reasons:    map[string]map[string]string{"A": {}, "B": {}, "C": {}},
				Counts:     []int{4, 0, 0},
				TotalCount: 4,
			},
		},
		{
			name: "counts truncated",
			raw:  &models.GenerationResponse{Names: []string{"A"}, NamesCount: []int{2, 8, 9}, TotalCount: intPtr(19)},
			want: models.GenerationResult{
				Names:      []string{"A"},
				Reasons:    map[string]map[string]string{"A": {}},
				Counts:     []int{2},
				TotalCount: 19,
			},
		},
		{
			name: "blank names skipped with their counts",
			raw:  &models.GenerationResponse{Names: []string{"", "B"}, NamesCount: []int{7, 3}},
			want: models.GenerationResult{
				Names:      []string{"B"},
				Reasons:    map[string]map[string]string{"B": {}},
				Counts:     []int{3},
				TotalCount: 3,
			},
		},
		{
			name: "legacy shape",
			raw:  &models.GenerationResponse{Name: "Luna", Explanation: "calm and bright"},
			want: models.GenerationResult{
				Names:      []string{"Luna"},
				Reasons:    map[string]map[string]string{"Luna": {"explanation": "calm and bright"}},
				Counts:     []int{1},
				TotalCount: 1,
			},
		},
		{
			name: "nothing usable",
			raw:  &models.GenerationResponse{Explanation: "orphan"},
			want: models.GenerationResult{
				Names:      []string{},
				Reasons:    map[string]map[string]string{},
				Counts:     []int{},
				TotalCount: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrNilPayload) {
					t.Fatalf("expected ErrNilPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_DoesNotAliasReasons(t *testing.T) {
	raw := &models.GenerationResponse{
		Names:   []string{"A"},
		Reasons: map[string]map[string]string{"A": {"k": "v"}},
	}
	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	raw.Reasons["A"]["k"] = "changed"
	if got.Reasons["A"]["k"] != "v" {
		t.Error("result shares reason map with payload")
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"transport": &nameapi.StatusError{StatusCode: 502},
		"malformed": nameapi.ErrMalformedResponse,
		"cancelled": context.DeadlineExceeded,
		"service":   errors.New("other"),
	}
	for want, err := range cases {
		if got := failureKind(err); got != want {
			t.Errorf("failureKind(%v) = %q, want %q", err, got, want)
		}
	}
}
