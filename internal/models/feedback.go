package models

import (
	"strings"
	"time"
)

// Rating is the user's reaction to a generated name.
type Rating string

const (
	RatingLove    Rating = "love"
	RatingNeutral Rating = "neutral"
	RatingDislike Rating = "dislike"
)

var ratingEmoji = map[Rating]string{
	RatingLove:    "😍",
	RatingNeutral: "😐",
	RatingDislike: "👎",
}

var ratingAck = map[Rating]string{
	RatingLove:    "정말 좋아해 주셔서 감사합니다! ❤️",
	RatingNeutral: "소중한 의견 감사합니다!",
	RatingDislike: "다음에는 더 좋은 이름을 찾아드릴게요!",
}

// ParseRating accepts either the rating name or its emoji.
func ParseRating(s string) (Rating, bool) {
	s = strings.TrimSpace(s)
	for r, e := range ratingEmoji {
		if s == e || strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// Emoji returns the emoji shown for r.
func (r Rating) Emoji() string {
	return ratingEmoji[r]
}

// Acknowledgement returns the thank-you text shown after rating.
func (r Rating) Acknowledgement() string {
	return ratingAck[r]
}

// Feedback is a rating left on a generated result.
type Feedback struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Rating    Rating    `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// ShareStatus is the delivery state reported for a share attempt.
type ShareStatus string

const (
	ShareStatusSent   ShareStatus = "sent"
	ShareStatusFailed ShareStatus = "failed"
)

// ShareReceipt records one attempt to send the share text to a recipient.
type ShareReceipt struct {
	SessionID string      `json:"session_id"`
	To        string      `json:"to"`
	Name      string      `json:"name"`
	Status    ShareStatus `json:"status"`
	MessageID string      `json:"message_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
