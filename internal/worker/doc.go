// Package worker runs the background machinery: the Redis job queues,
// the mailbox sync scheduler and processor, the AI analysis worker, the
// weekly report worker, and the health monitor.
package worker
