package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotIdle indicates a session start was attempted while a run is
	// already in progress or finished but not cleared
	ErrNotIdle = errors.New("session not idle")

	// ErrSessionActive indicates another session already owns the context key
	ErrSessionActive = errors.New("session already active")

	// ErrSessionNotFound indicates the requested session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidGrammar indicates the grammar failed server-side validation
	ErrInvalidGrammar = errors.New("invalid grammar")

	// ErrInvalidInput indicates that request validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates a non-success response or network failure
	// opening a generation phase
	ErrTransport = errors.New("transport error")

	// ErrProtocol indicates an explicit error event from the far side
	ErrProtocol = errors.New("protocol error")

	// ErrRecordNotFound indicates a run record was not found in the store
	ErrRecordNotFound = errors.New("record not found")

	// ErrStoreClosed indicates the store has been closed
	ErrStoreClosed = errors.New("store closed")

	// ErrGrammarNotFound indicates the named grammar is not in the library
	ErrGrammarNotFound = errors.New("grammar not found")

	// ErrRateLimited indicates the limiter middleware rejected the request
	ErrRateLimited = errors.New("rate limited")
)
