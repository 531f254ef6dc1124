// Package api implements the boundary between capture surfaces, control
// surfaces, and the save queue.
//
// SaveService owns the synchronous half of the pipeline: validation,
// duplicate filtering, and enqueue happen before Submit returns, so
// producers get an immediate accept/reject verdict. Everything asynchronous
// (delivery, retries, broadcasts) belongs to the delivery worker.
package api
