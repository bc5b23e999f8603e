package telemetry

import "errors"

var (
	// ErrInvalidTopic is returned for topics that are not lamps/{id}/{kind}.
	ErrInvalidTopic = errors.New("telemetry: invalid topic")

	// ErrMalformedMessage is returned when a payload cannot be decoded.
	ErrMalformedMessage = errors.New("telemetry: malformed message")

	// ErrUnknownLamp is returned for reports from lamps that do not exist.
	ErrUnknownLamp = errors.New("telemetry: unknown lamp")
)
