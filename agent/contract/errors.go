package contract

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrExtraction          = errors.New("extraction failed")
	ErrLLMTimeout          = errors.New("llm request timed out")
	ErrLLMMalformed        = errors.New("llm response violates schema")
	ErrLLMUnavailable      = errors.New("llm backend unavailable")
	ErrNotifierUnavailable = errors.New("dispatch notifier unavailable")
	ErrInvalidRecipient    = errors.New("dispatch recipient is invalid")
	ErrDispatchFailed      = errors.New("booking dispatch failed")
)
