// Package checkpoint saves and restores ingestion progress.
//
// A checkpoint records which day windows of a run are already written and, for the
// window in progress, the listing cursor, the posts matched so far and how many of
// them already carry their comments. A run interrupted mid-window resumes from the
// saved cursor instead of re-walking the listing from the most recent post.
//
// Files live under the configured checkpoint directory as {source}.checkpoint.json.
// They are written to a temporary file, synced and renamed into place.
package checkpoint
