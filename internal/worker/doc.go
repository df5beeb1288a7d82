// Package worker runs the processing pipeline: a scheduler feeds file
// tasks from queued jobs to a bounded pool of workers, applies the
// retry policy, and finalizes jobs once their last task settles.
package worker
