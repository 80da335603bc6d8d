package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = goerr.New("record not found")

	// ErrStoreUnavailable marks transient record store or index failures
	ErrStoreUnavailable = goerr.New("store unavailable")

	// ErrInvalidRecord is returned when a record misses required fields
	ErrInvalidRecord = goerr.New("invalid record")

	// ErrDuplicateTool is returned when a tool name is registered twice
	ErrDuplicateTool = goerr.New("duplicate tool")
)
