// Package share spreads a generated name beyond the session: as a terminal QR
// code and, when Twilio is configured, as an SMS.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// textTemplate is the message shared for a name.
const textTemplate = "내 영어 이름을 확인해보세요: %s!"

// noNameText is shared when the result carries no name.
const noNameText = "나에게 어울리는 영어 이름을 찾아보세요!"

// ErrNotConfigured is returned by Share when no SMS sender is available.
var ErrNotConfigured = errors.New("sharing is not configured")

// Sender delivers a text message and returns the provider message id.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// ReceiptRecorder persists share attempts.
type ReceiptRecorder interface {
	AddShareReceipt(r models.ShareReceipt) error
}

// Text returns the share message for name.
func Text(name string) string {
	if strings.TrimSpace(name) == "" {
		return noNameText
	}
	return fmt.Sprintf(textTemplate, name)
}

// RenderQR writes text as a half-block QR code to w.
func RenderQR(w io.Writer, text string) {
	qrterminal.GenerateHalfBlock(text, qrterminal.L, w)
}

// Sharer sends share texts and records a receipt for every attempt.
type Sharer struct {
	sender   Sender
	recorder ReceiptRecorder
	now      func() time.Time
}

// NewSharer creates a Sharer. sender may be nil, in which case Share reports
// ErrNotConfigured. recorder may be nil.
func NewSharer(sender Sender, recorder ReceiptRecorder) *Sharer {
	return &Sharer{sender: sender, recorder: recorder, now: time.Now}
}

// Enabled reports whether SMS sharing is available.
func (s *Sharer) Enabled() bool {
	return s != nil && s.sender != nil
}

// Share sends the share text for name to the recipient.
func (s *Sharer) Share(ctx context.Context, sessionID, to, name string) (models.ShareReceipt, error) {
	if !s.Enabled() {
		return models.ShareReceipt{}, ErrNotConfigured
	}
	req := models.ShareRequest{To: to}
	if err := req.Validate(); err != nil {
		return models.ShareReceipt{}, err
	}
	to = strings.TrimSpace(to)

	receipt := models.ShareReceipt{
		SessionID: sessionID,
		To:        to,
		Name:      name,
		Status:    models.ShareStatusSent,
		CreatedAt: s.now(),
	}

	id, sendErr := s.sender.SendMessage(ctx, to, Text(name))
	if sendErr != nil {
		slog.Warn("Sharer.Share: send failed", "session_id", sessionID, "error", sendErr)
		receipt.Status = models.ShareStatusFailed
	} else {
		receipt.MessageID = id
		slog.Info("Sharer.Share: name shared", "session_id", sessionID, "message_id", id)
	}

	if s.recorder != nil {
		if err := s.recorder.AddShareReceipt(receipt); err != nil {
			slog.Error("Sharer.Share: failed to record receipt", "session_id", sessionID, "error", err)
		}
	}
	if sendErr != nil {
		return receipt, fmt.Errorf("failed to share with %s: %w", to, sendErr)
	}
	return receipt, nil
}
