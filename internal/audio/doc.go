// Package audio handles WAV container framing for raw PCM uploads.
// It wraps little-endian 16-bit mono PCM byte payloads in a 44-byte
// RIFF/WAVE header and provides validation and metadata helpers for
// the framed artifacts.
package audio
