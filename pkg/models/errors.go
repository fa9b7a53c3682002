package models

import "errors"

var (
	// Work item errors
	ErrWorkItemNotFound  = errors.New("work item not found")
	ErrDuplicateWorkItem = errors.New("work item already exists")

	// Attachment errors
	ErrAttachmentNotFound = errors.New("attachment not found")

	// Hash dictionary errors
	ErrHashNotFound = errors.New("hash not found")
)
