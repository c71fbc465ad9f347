// Package emotion implements the websocket client for the speech-emotion
// inference service. It streams one framed audio artifact per session,
// maps the returned prosody predictions into ordered result windows, and
// converts every transport or protocol failure into an "unavailable"
// outcome instead of an error.
package emotion
