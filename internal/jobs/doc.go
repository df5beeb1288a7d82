// Package jobs exposes the submission and control surface of the
// orchestrator: validating submissions, expanding directories into file
// tasks, archiving originals, and cancelling or querying jobs.
package jobs
