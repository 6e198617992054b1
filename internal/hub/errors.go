package hub

import "errors"

var (
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrCommandChannelFull = errors.New("command channel is full")
	ErrUnknownCommand     = errors.New("unknown command type")
	ErrRoleNotAllowed     = errors.New("command not permitted for this role")
)
