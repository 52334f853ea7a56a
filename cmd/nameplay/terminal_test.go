package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/share"
	"github.com/BTreeMap/NamePlay/internal/store"
	"github.com/BTreeMap/NamePlay/internal/testutil"
)

func TestRunChat(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := share.NewMockSender()
	gen := flow.NewStaticGenerator(testutil.SampleResult())

	input := strings.Join([]string{
		"abc", "female", // rejected, asked again
		"25", "female",
		"INTJ", "", "개발자", "호기심", "등산", "밝음",
		"😍",
		"+15551234",
	}, "\n") + "\n"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := runChat(ctx, strings.NewReader(input), &out, gen, st, share.NewSharer(sender, st), flow.Delays{})
	if err != nil {
		t.Fatalf("runChat: %v\n%s", err, out.String())
	}

	text := out.String()
	for _, want := range []string{
		models.ErrInvalidAge.Error(),
		flow.DefaultQuestions[0].Prompt,
		flow.DefaultQuestions[5].Prompt,
		"답변을 입력해 주세요.",
		flow.ConfirmationText,
		"1. Alex (3/4)",
		"questionOne: 에너지가 넘치는 성격",
		"내 영어 이름을 확인해보세요: Alex!",
		models.RatingLove.Acknowledgement(),
		"공유했어요 (SM0001)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}

	testutil.AssertFeedbackCount(t, st, 1, "after chat")
	if gen.Calls() != 1 {
		t.Errorf("generator calls = %d", gen.Calls())
	}
	if len(sender.SentMessages) != 1 || sender.SentMessages[0].To != "+15551234" {
		t.Errorf("sent = %+v", sender.SentMessages)
	}
}

func TestRunChatSkipsRatingAndShare(t *testing.T) {
	st := store.NewInMemoryStore()
	input := "30\nmale\na\nb\nc\nd\ne\n\n"

	var out bytes.Buffer
	err := runChat(context.Background(), strings.NewReader(input), &out, flow.NewStaticGenerator(testutil.SampleResult()), st, share.NewSharer(nil, nil), flow.Delays{})
	if err != nil {
		t.Fatalf("runChat: %v", err)
	}
	testutil.AssertFeedbackCount(t, st, 0, "skipped rating")
	if strings.Contains(out.String(), "전화번호") {
		t.Error("share prompt shown without a sender")
	}
}

func TestRunChatInputClosed(t *testing.T) {
	var out bytes.Buffer
	err := runChat(context.Background(), strings.NewReader("30\nmale\na\n"), &out, flow.NewStaticGenerator(testutil.SampleResult()), nil, share.NewSharer(nil, nil), flow.Delays{})
	if !errors.Is(err, errInputClosed) {
		t.Errorf("err = %v, want errInputClosed", err)
	}
}

func TestRunRanking(t *testing.T) {
	lister := &testutil.FakeLister{TotalPages: 2}
	input := "n\nn\np\n5\nx\n2\nq\n"

	var out bytes.Buffer
	if err := runRanking(context.Background(), strings.NewReader(input), &out, lister, 10); err != nil {
		t.Fatalf("runRanking: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"(1/2)",
		"  1. name-0-0",
		"(2/2)",
		" 11. name-1-0",
		"페이지 범위를 벗어났어요.",
		"알 수 없는 명령이에요.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q\n%s", want, text)
		}
	}
	// initial, next, prev, page 2; the two out-of-range requests never reach the lister
	if lister.Calls != 4 {
		t.Errorf("lister calls = %d, want 4", lister.Calls)
	}
}

func TestRunRankingUpstreamError(t *testing.T) {
	lister := &testutil.FakeLister{TotalPages: 1, Err: errors.New("connection refused")}

	var out bytes.Buffer
	if err := runRanking(context.Background(), strings.NewReader("q\n"), &out, lister, 10); err != nil {
		t.Fatalf("runRanking: %v", err)
	}
	if !strings.Contains(out.String(), "순위를 불러오지 못했어요") {
		t.Errorf("output = %q", out.String())
	}
}
