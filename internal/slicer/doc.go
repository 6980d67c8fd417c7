package slicer

// Package slicer implements slice job execution against the OrcaSlicer
// command line interface.
//
// Overview
// The Orchestrator owns a bounded queue of job ids and a fixed pool of
// workers. Job creation validates the model and profile references,
// persists a queued record and enqueues the id exactly once; a worker
// later picks it up and drives it to completed or failed. Records in any
// other state than queued are never re-executed.
//
// Translate merges profile settings with per-job overrides and coerces
// the values into the string forms the CLI accepts; WriteDocument
// renders the merged map as a settings document in a job work
// directory.
//
// Run is a thin wrapper around os/exec: it executes one Invocation with
// captured stdout and stderr and reports the exit code without
// classifying it.
//
// ParseGcodeMetadata and ParseProjectMetadata recover a best-effort
// metadata summary from the produced G-code header comments and the
// packaged project archive. Extraction failures are logged and never
// fail the job that produced the artifacts.
//
// Data flow:
//
//	CreateJob             worker                  OrcaSlicer CLI
//	    |                    |                        |
//	persist queued --------->|                        |
//	    |                    | Translate + document   |
//	    |                    | Run(Invocation) ------>| slice, write artifacts
//	    |                    |<----- RunResult -------|
//	    |                    | ExtractMetadata        |
//	    |                    | persist terminal state |
