// Package ingest drives a collection run.
//
// For each UTC day window, newest first, the engine pages through the upstream
// listing from the most recent post, keeps the posts created inside the window,
// fetches and flattens their comment trees, and publishes the window as one snapshot.
// Every upstream call goes through the client's rate limiter. Transient failures
// are retried a bounded number of times; exhausting them aborts the run and leaves
// snapshots that were already written in place.
//
// With a checkpoint manager the engine saves its position after every page and
// every post, so an interrupted run resumes inside the window it stopped in.
package ingest
