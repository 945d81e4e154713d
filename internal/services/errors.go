package services

import "errors"

var (
	// ErrUnsupportedType is returned when a registration names a file type
	// outside the PDF/DOCX/TXT/Markdown allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrFileTooLarge is returned when the declared size exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotReady is returned when chunks are requested for a document whose
	// pipeline has not completed.
	ErrNotReady = errors.New("document processing not complete")

	// ErrConflict is returned on state conflicts, e.g. confirming a document
	// that is no longer in the uploading phase.
	ErrConflict = errors.New("conflicting document state")

	// ErrEmbeddingModelLocked is returned when a settings update tries to
	// change the embedding model on a project that already has documents.
	ErrEmbeddingModelLocked = errors.New("embedding model is locked once documents exist")
)
