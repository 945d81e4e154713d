package client

import "errors"

// Failure categories for the three-step upload. Each wraps the underlying
// cause so callers can branch on the step that broke while still unwrapping
// transport details.
var (
	// ErrRegistrationFailed means the server rejected or never created the
	// document slot. Nothing remote exists; nothing to clean up.
	ErrRegistrationFailed = errors.New("upload registration failed")

	// ErrTransferFailed means the byte transfer to the storage URL failed
	// after a slot was registered. The orphaned slot is cleaned up.
	ErrTransferFailed = errors.New("file transfer failed")

	// ErrConfirmationFailed means the transfer went through but the server
	// did not accept the confirmation. The slot is cleaned up.
	ErrConfirmationFailed = errors.New("upload confirmation failed")

	// ErrCleanupFailed is joined onto a transfer or confirmation error when
	// the compensating delete of the registered slot also failed.
	ErrCleanupFailed = errors.New("cleanup of registered upload failed")

	// ErrNotReady is returned by chunk listing while the document's pipeline
	// has not completed.
	ErrNotReady = errors.New("document results not ready")
)
