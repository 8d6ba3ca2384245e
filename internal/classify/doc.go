// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package classify defines the core domain model for iterative
// human-in-the-loop classification: workspaces, categories, iterations, and
// the capability interfaces through which the orchestrator reaches model
// backends and corpus data.
//
// # Domain Model
//
// A Workspace owns named Categories. Each Category carries an append-only
// list of Iterations; an Iteration wraps one trained model together with its
// lifecycle status, post-train statistics, and the active-learning
// recommendations computed for it. Iteration indices are assigned at append
// time and never change.
//
// # Status Lifecycle
//
// IterationStatus advances forward only:
//
//	TRAINING -> RUNNING_INFERENCE -> RUNNING_ACTIVE_LEARNING ->
//	CALCULATING_STATISTICS -> READY
//
// ERROR and MODEL_DELETED are reachable from every state. READY and ERROR
// are terminal except for the transition to MODEL_DELETED, which records
// that the underlying model artifact was purged by retention. The valid
// transitions are enforced by the state machine in fsm.go.
//
// # Capabilities
//
// ModelBackend and DataAccess are the only two contracts the orchestrator
// consumes. Concrete model services and corpus stores live outside this
// module and plug in behind these interfaces.
package classify
