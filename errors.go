package deckport

import "errors"

var (
	// ErrLessonNotFound is returned when a lesson ID does not exist.
	ErrLessonNotFound = errors.New("deckport: lesson not found")

	// ErrModuleNotFound is returned when a module ID does not exist.
	ErrModuleNotFound = errors.New("deckport: module not found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("deckport: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("deckport: store is closed")
)
