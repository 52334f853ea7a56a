// Package models defines the core data structures for NamePlay.
//
// It includes the dialogue, generation and leaderboard types shared across modules,
// plus the request payloads and response envelopes of the HTTP API.
package models

import (
	"errors"
	"strconv"
	"strings"
)

// Validation constants for input validation
const (
	// MaxAnswerLength is the maximum number of characters kept from a single chat answer.
	MaxAnswerLength = 50
	// MaxAge is the largest age accepted by the form.
	MaxAge = 150
	// MaxShareRecipientLength bounds the phone number accepted for sharing.
	MaxShareRecipientLength = 32
)

// Gender values offered by the form.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderNeutral = "neutral"
)

// Error variables for better error handling and testability
var (
	ErrMissingAge        = errors.New("age is required")
	ErrInvalidAge        = errors.New("age must be a whole number between 1 and 150")
	ErrMissingGender     = errors.New("gender is required")
	ErrInvalidGender     = errors.New("gender must be one of male, female, neutral")
	ErrEmptyInput        = errors.New("input cannot be empty")
	ErrInvalidRating     = errors.New("invalid rating")
	ErrMissingRecipient  = errors.New("recipient is required")
	ErrRecipientTooLong  = errors.New("recipient exceeds maximum length")
	ErrInvalidPageNumber = errors.New("page must be a non-negative integer")
)

// IsValidGender checks if the given gender is one of the offered choices.
func IsValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderNeutral:
		return true
	default:
		return false
	}
}

// TruncateAnswer cuts s down to MaxAnswerLength characters.
func TruncateAnswer(s string) string {
	r := []rune(s)
	if len(r) <= MaxAnswerLength {
		return s
	}
	return string(r[:MaxAnswerLength])
}

// FormRequest is the payload for leaving the form step.
type FormRequest struct {
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

// Validate performs validation on a FormRequest.
func (r *FormRequest) Validate() error {
	age := strings.TrimSpace(r.Age)
	if age == "" {
		return ErrMissingAge
	}
	n, err := strconv.Atoi(age)
	if err != nil || n < 1 || n > MaxAge {
		return ErrInvalidAge
	}
	if strings.TrimSpace(r.Gender) == "" {
		return ErrMissingGender
	}
	if !IsValidGender(r.Gender) {
		return ErrInvalidGender
	}
	return nil
}

// MessageRequest is the payload for answering the current chat question.
type MessageRequest struct {
	Input string `json:"input"`
}

// Validate performs validation on a MessageRequest.
func (r *MessageRequest) Validate() error {
	if strings.TrimSpace(r.Input) == "" {
		return ErrEmptyInput
	}
	return nil
}

// FeedbackRequest is the payload for rating a generated result.
type FeedbackRequest struct {
	Rating string `json:"rating"`
}

// Validate performs validation on a FeedbackRequest.
func (r *FeedbackRequest) Validate() error {
	if _, ok := ParseRating(r.Rating); !ok {
		return ErrInvalidRating
	}
	return nil
}

// ShareRequest is the payload for sending the share text to a phone number.
type ShareRequest struct {
	To string `json:"to"`
}

// Validate performs validation on a ShareRequest.
func (r *ShareRequest) Validate() error {
	to := strings.TrimSpace(r.To)
	if to == "" {
		return ErrMissingRecipient
	}
	if len(to) > MaxShareRecipientLength {
		return ErrRecipientTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// RecordedWithMessage creates a recorded API response with a message.
func RecordedWithMessage(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithMessage(message).
		Build()
}
