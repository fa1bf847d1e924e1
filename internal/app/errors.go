package app

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAnswerFailed = errors.New("answer generation failed")
	ErrMemory       = errors.New("memory store failed")
)
