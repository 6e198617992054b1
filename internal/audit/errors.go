package audit

import "errors"

var (
	ErrSinkClosed = errors.New("audit sink is closed")
)
