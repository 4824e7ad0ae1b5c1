package domain

import "errors"

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrCatalogNotFound   = errors.New("promotion catalog not found")
	ErrInvalidCatalog    = errors.New("promotion catalog is malformed")
	ErrInvalidPromotion  = errors.New("invalid promotion")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrLockTimeout       = errors.New("timed out waiting for catalog lock")
)
