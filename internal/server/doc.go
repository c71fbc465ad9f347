// Package server implements the HTTP front end of the audio ingestion
// service: the upload endpoint that drives the pipeline plus the
// health, configuration, statistics, and Prometheus endpoints.
package server
