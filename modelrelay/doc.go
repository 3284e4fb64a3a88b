// Package modelrelay is the model-exchange collaborator for the run loop.
//
// It wraps gollm behind a small provider-agnostic Model interface, maps
// provider failures onto a typed error taxonomy, and retries transient
// conditions (rate limits, server errors, timeouts, network failures) with
// exponential backoff and jitter. Insufficient credits and authentication
// failures are never retried.
//
// Relay implements engine.Exchanger: it routes prompt parts to the
// configured code or vision model, normalizes local image paths into base64
// data URLs, and returns the prompt.sent and response.received envelopes for
// the run loop to log and publish. EchoExchanger is the offline fallback
// used when no API key is configured: it answers every prompt with a local
// echo and never leaves the process.
package modelrelay
