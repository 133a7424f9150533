package clients

import "errors"

var ErrInvalidScope = errors.New("invalid scope")
