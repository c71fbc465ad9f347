// Package ingest coordinates the audio ingestion pipeline: it validates
// the uploaded payload, frames it into a WAV artifact, parks the artifact
// in scratch storage, fans out to the emotion analyzer and the archive
// uploader with isolated failure handling, and assembles the aggregated
// result. The scratch artifact is released on every exit path.
package ingest
