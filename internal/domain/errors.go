package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBidTooLow       = errors.New("bid too low")
	ErrReserveNotMet   = errors.New("reserve price not met")
	ErrListingSettled  = errors.New("listing already settled")
	ErrListingInactive = errors.New("listing not active")
	ErrOfferClosed     = errors.New("offer no longer open")
	ErrNoBuyNow        = errors.New("listing has no buy-now price")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
)
