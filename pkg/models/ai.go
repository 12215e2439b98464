// Package models contains shared data models used across the LectureLab codebase.
package models

import "context"

// Backend is the part every AI integration shares: an identifier and a cheap
// canary call used to decide whether the backend is usable for a job.
type Backend interface {
	// Name returns the candidate identifier (e.g., "openai:gpt-4o-mini").
	Name() string
	// Probe sends a minimal request and returns nil if the backend answered.
	Probe(ctx context.Context) error
}

// Transcriber turns an audio payload into text.
// Callers depend on these interfaces, never on a concrete backend.
type Transcriber interface {
	Backend
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
}

// Generator sends instructions plus an optional set of images and returns free text.
type Generator interface {
	Backend
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// TranscribeRequest is the input to a speech-to-text call.
type TranscribeRequest struct {
	Audio    []byte
	FileName string
	MIMEType string
	Language string
	Prompt   string
}

// GenerateRequest is the input to a text or vision generation call.
type GenerateRequest struct {
	Instructions string
	Prompt       string
	Images       []Attachment
	JSON         bool // ask the backend for a JSON-only answer when it supports it
	MaxTokens    int
}

// Attachment is an inline binary input such as an answer-sheet photo.
type Attachment struct {
	MIMEType string
	Data     []byte
}
