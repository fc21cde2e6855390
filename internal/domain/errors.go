package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrPoolClosed   = errors.New("pool closed")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrQueueFull    = errors.New("queue full")
)
