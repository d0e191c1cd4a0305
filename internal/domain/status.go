// Package domain – enumerated value types.
//
// This file centralizes the small closed vocabularies used across the
// subsystem: commission lifecycle statuses, commission types, chat message
// types, read state, and the image source tag. Status canonicalization lives
// here exclusively; handlers and services never compare status strings
// case-insensitively on their own.
package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the commission lifecycle state, always held in canonical casing
// ("Open", "Sketch", …). Parse any externally supplied value with
// ParseStatus before storing or comparing it.
type Status string

// Lifecycle states. Open is initial; Completed and Cancelled are terminal.
const (
	StatusOpen      Status = "Open"
	StatusSketch    Status = "Sketch"
	StatusEdits     Status = "Edits"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// statusTitler canonicalizes arbitrary casing ("OPEN", "open") to the stored
// title-cased form.
var statusTitler = cases.Title(language.English)

// ParseStatus canonicalizes a status string case-insensitively. It returns
// an error for values outside the five known states.
func ParseStatus(s string) (Status, error) {
	canon := Status(statusTitler.String(strings.ToLower(strings.TrimSpace(s))))
	switch canon {
	case StatusOpen, StatusSketch, StatusEdits, StatusCompleted, StatusCancelled:
		return canon, nil
	}
	return "", fmt.Errorf("unknown commission status %q", s)
}

// Terminal reports whether no further lifecycle transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NextOnApprove returns the status an approve review moves a commission to.
// Sketch advances to Edits and Edits to Completed; every other state keeps
// its current status (approve is tolerated as a no-op there).
func (s Status) NextOnApprove() (Status, bool) {
	switch s {
	case StatusSketch:
		return StatusEdits, true
	case StatusEdits:
		return StatusCompleted, true
	}
	return s, false
}

// CommissionType distinguishes open marketplace listings from targeted work.
type CommissionType string

const (
	// CommissionPublic is an open listing any creator may accept.
	CommissionPublic CommissionType = "public"
	// CommissionDirect targets one named creator from the start.
	CommissionDirect CommissionType = "direct"
)

// MessageType classifies chat messages.
type MessageType string

const (
	// MessageText is an ordinary text message between the two parties.
	MessageText MessageType = "text"
	// MessageImage carries an image payload instead of (or alongside) text.
	MessageImage MessageType = "image"
	// MessageStage is a creator's work-in-progress submission.
	MessageStage MessageType = "stage"
	// MessageStageApprove is the customer's approval of a stage message.
	MessageStageApprove MessageType = "stage-approve"
	// MessageStageReject is the customer's rejection of a stage message.
	MessageStageReject MessageType = "stage-reject"
)

// ParseMessageType validates an externally supplied message type for the
// send-message endpoint. Stage and review types are system-generated and are
// deliberately not accepted here.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case MessageText, MessageImage:
		return t, nil
	case MessageStage, MessageStageApprove, MessageStageReject:
		return "", fmt.Errorf("message type %q is reserved for the review workflow", s)
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// ReadStatus tracks per-message delivery acknowledgement.
type ReadStatus string

const (
	ReadStatusUnread ReadStatus = "unread"
	ReadStatusRead   ReadStatus = "read"
)

// ImageSourceKind tags how an image value is stored. The tag is decided once
// at ingestion, so reads embed the value directly instead of sniffing it
// repeatedly.
type ImageSourceKind string

const (
	// ImageBinary is raw image bytes (jpeg/png/gif).
	ImageBinary ImageSourceKind = "binary"
	// ImageDataURI is a complete data:<mime>;base64 envelope.
	ImageDataURI ImageSourceKind = "data_uri"
	// ImageFilePath points at a file under one of the configured roots.
	ImageFilePath ImageSourceKind = "file_path"
	// ImageRemoteURL is an http(s) URL passed through to clients untouched.
	ImageRemoteURL ImageSourceKind = "remote_url"
)
