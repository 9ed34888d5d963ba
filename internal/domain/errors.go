package domain

import "errors"

var (
	ErrStreamerNotFound     = errors.New("streamer not found")
	ErrChannelNotFound      = errors.New("twitch channel not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrAlreadyExists        = errors.New("subscription already exists upstream")
	ErrProviderRejected     = errors.New("provider rejected request")
	ErrJobNotFound          = errors.New("job not found")
)
