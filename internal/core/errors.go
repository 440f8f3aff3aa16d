package core

import "errors"

var (
	// ErrUnauthorized is returned when admission requires a credential and
	// none resolves to an active identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConnClosed is returned by a connection whose transport session is gone.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection's outbound buffer is full.
	ErrSlowConsumer = errors.New("slow consumer")
)
