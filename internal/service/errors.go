package service

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotApproved = errors.New("task must be approved before media generation")
	ErrEmptyContent    = errors.New("task has no content")
	ErrMediaNotFound   = errors.New("media record not found")
	ErrMissingInput    = errors.New("no completed media to compose")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file exceeds upload limit")
)
