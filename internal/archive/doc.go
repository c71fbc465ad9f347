// Package archive uploads framed audio artifacts to an S3-compatible
// object store. An unconfigured destination and every upload failure
// degrade to a "skipped" outcome so archival can never abort a request.
package archive
