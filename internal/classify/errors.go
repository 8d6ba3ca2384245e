// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package classify

import "errors"

// Sentinel errors shared across the orchestrator. Callers detect them with
// errors.Is; packages wrap them with context via fmt.Errorf and %w.
var (
	// ErrNotFound indicates a workspace, category, iteration, or item that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates caller input that can never succeed,
	// such as a malformed workspace id or a disallowed status transition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedOperation indicates an operation a particular strategy
	// or backend does not implement, such as per-element scores on a
	// jointly-optimizing selection strategy.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrCorruptState indicates an unreadable persisted workspace record.
	// There is no safe automatic recovery; operator intervention is
	// required.
	ErrCorruptState = errors.New("corrupt persisted state")
)
