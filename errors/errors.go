package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Startup
	ErrBindFailure    = fmt.Errorf("bind failure")
	ErrInvalidState   = fmt.Errorf("invalid state transition")
	ErrTransportClose = fmt.Errorf("transport closed")

	// Wire decoding
	ErrUnknownTag  = fmt.Errorf("unknown message tag")
	ErrTruncated   = fmt.Errorf("truncated message")
	ErrOversize    = fmt.Errorf("declared string exceeds capacity")
	ErrInvalidUTF8 = fmt.Errorf("string is not valid utf-8")

	// Delivery
	ErrSendFailure        = fmt.Errorf("send failure")
	ErrUnregisteredSender = fmt.Errorf("chat from unregistered sender")
	ErrUnknownConnection  = fmt.Errorf("unknown connection")

	// Input validation
	ErrCapacityExceeded = fmt.Errorf("capacity exceeded")
	ErrInvalidName      = fmt.Errorf("invalid display name")
	ErrEmptyMessage     = fmt.Errorf("empty message")
	ErrNotConnected     = fmt.Errorf("not connected")

	// Moderation
	ErrEmptyWords = fmt.Errorf("no censored words found")
)
