// Package jobs runs durable ingestion and deletion work.
//
// A Dispatcher polls a storage.JobQueue, leases jobs and runs the handler
// registered for each job kind on an ants worker pool. Jobs are completed
// once their handler returns, successful or not; failures are reported to
// users through notifications, not retried automatically. A process that
// dies mid-job leaves the lease to expire and the job is delivered again,
// so handlers must be safe to re-run.
//
// Locker serializes work on one document across handlers.
package jobs
