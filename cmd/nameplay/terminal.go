package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/share"
)

// errInputClosed is returned when stdin ends before the dialogue does.
var errInputClosed = errors.New("input closed")

// lineReader prompts on out and reads one line from in.
type lineReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newLineReader(in io.Reader, out io.Writer) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *lineReader) read(prompt string) (string, bool) {
	fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.scanner.Text()), true
}

// runChat runs one dialogue session against the terminal.
func runChat(ctx context.Context, in io.Reader, out io.Writer, gen flow.Generator, sink flow.FeedbackSink, sharer *share.Sharer, delays flow.Delays) error {
	events := make(chan flow.Event, 64)
	opts := []flow.SessionOption{
		flow.WithDelays(delays),
		flow.WithObserver(func(ev flow.Event) { events <- ev }),
	}
	if sink != nil {
		opts = append(opts, flow.WithFeedbackSink(sink))
	}
	sess := flow.NewSession(uuid.NewString(), gen, opts...)
	defer sess.Close()

	lines := newLineReader(in, out)
	if err := chatForm(lines, out, sess); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			renderEvent(out, ev)
			if ev.Type == flow.EventState && ev.State == models.StateResult {
				return chatResult(ctx, lines, out, sess, sharer)
			}
			if ev.Type == flow.EventMessage && ev.Message.Sender == models.SenderSystem && sess.Snapshot().AwaitingInput {
				if err := chatAnswer(lines, out, sess); err != nil {
					return err
				}
			}
		}
	}
}

func chatForm(lines *lineReader, out io.Writer, sess *flow.Session) error {
	for {
		age, ok := lines.read("나이: ")
		if !ok {
			return errInputClosed
		}
		gender, ok := lines.read("성별 (male/female/neutral): ")
		if !ok {
			return errInputClosed
		}
		req := models.FormRequest{Age: age, Gender: gender}
		if err := req.Validate(); err != nil {
			fmt.Fprintf(out, "⚠️  %v\n", err)
			continue
		}
		return sess.SubmitForm(req.Age, req.Gender)
	}
}

func chatAnswer(lines *lineReader, out io.Writer, sess *flow.Session) error {
	for {
		answer, ok := lines.read("> ")
		if !ok {
			return errInputClosed
		}
		err := sess.Submit(answer)
		if errors.Is(err, flow.ErrEmptyInput) {
			fmt.Fprintln(out, "답변을 입력해 주세요.")
			continue
		}
		return err
	}
}

func renderEvent(out io.Writer, ev flow.Event) {
	switch ev.Type {
	case flow.EventMessage:
		if ev.Message.Sender == models.SenderSystem {
			fmt.Fprintf(out, "🤖 %s\n", ev.Message.Content)
		}
	case flow.EventTyping:
		if ev.Typing {
			fmt.Fprintln(out, "…")
		}
	}
}

// chatResult prints the result, its QR code, and collects an optional rating and share.
func chatResult(ctx context.Context, lines *lineReader, out io.Writer, sess *flow.Session, sharer *share.Sharer) error {
	snap := sess.Snapshot()
	if snap.Result == nil {
		return flow.ErrNotInResult
	}
	renderResult(out, *snap.Result)

	top := snap.Result.TopName()
	text := share.Text(top)
	fmt.Fprintf(out, "\n%s\n", text)
	share.RenderQR(out, text)

	for {
		raw, ok := lines.read("평가 (😍/😐/👎, 건너뛰려면 Enter): ")
		if !ok || raw == "" {
			break
		}
		rating, valid := models.ParseRating(raw)
		if !valid {
			fmt.Fprintln(out, "😍, 😐, 👎 중 하나를 입력해 주세요.")
			continue
		}
		ack, err := sess.Rate(rating)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ack)
		break
	}

	if !sharer.Enabled() {
		return nil
	}
	to, ok := lines.read("공유할 전화번호 (건너뛰려면 Enter): ")
	if !ok || to == "" {
		return nil
	}
	receipt, err := sharer.Share(ctx, sess.ID(), to, top)
	if err != nil {
		slog.Warn("runChat: share failed", "error", err)
		fmt.Fprintf(out, "공유에 실패했어요: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "공유했어요 (%s)\n", receipt.MessageID)
	return nil
}

func renderResult(out io.Writer, res models.GenerationResult) {
	fmt.Fprintln(out)
	if len(res.Names) == 0 {
		fmt.Fprintln(out, "추천된 이름이 없습니다.")
		return
	}
	for i, name := range res.Names {
		fmt.Fprintf(out, "%d. %s (%d/%d)\n", i+1, name, res.CountFor(name), res.TotalCount)
		reasons := res.Reasons[name]
		for _, field := range slices.Sorted(maps.Keys(reasons)) {
			fmt.Fprintf(out, "   - %s: %s\n", field, reasons[field])
		}
	}
}

// runRanking pages through the leaderboard interactively.
func runRanking(ctx context.Context, in io.Reader, out io.Writer, lister leaderboard.Lister, pageSize int) error {
	board := leaderboard.NewController(lister, pageSize)
	lines := newLineReader(in, out)

	page, err := board.Load(ctx, 0)
	renderPage(out, page, err)
	for {
		cmd, ok := lines.read("[n]ext [p]rev [번호] [q]uit > ")
		if !ok {
			return nil
		}
		switch strings.ToLower(cmd) {
		case "", "q", "quit":
			return nil
		case "n", "next":
			page, err = board.Next(ctx)
		case "p", "prev":
			page, err = board.Prev(ctx)
		default:
			n, convErr := strconv.Atoi(cmd)
			if convErr != nil {
				fmt.Fprintln(out, "알 수 없는 명령이에요.")
				continue
			}
			page, err = board.Load(ctx, n-1)
		}
		renderPage(out, page, err)
	}
}

func renderPage(out io.Writer, page models.Page[models.NameCount], err error) {
	switch {
	case errors.Is(err, leaderboard.ErrPageOutOfRange):
		fmt.Fprintln(out, "페이지 범위를 벗어났어요.")
		return
	case err != nil:
		fmt.Fprintf(out, "순위를 불러오지 못했어요: %v\n", err)
		return
	}
	fmt.Fprintf(out, "\n🏆 이름 순위 (%d/%d)\n", page.PageIndex+1, page.TotalPages)
	for i, item := range page.Items {
		fmt.Fprintf(out, "%3d. %-20s %d\n", page.Rank(i), item.Name, item.Count)
	}
}
