package mutation

import "errors"

var (
	ErrOffline           = errors.New("mutation: network offline")
	ErrNotLoaded         = errors.New("mutation: queue not loaded")
	ErrInvalidKind       = errors.New("mutation: invalid kind")
	ErrMissingEntityType = errors.New("mutation: entity type is required")
	ErrInvalidData       = errors.New("mutation: data is not valid JSON")
	ErrNoWriter          = errors.New("mutation: no writer for operation")
)
