package supervisor

import "errors"

// launchError signals an invalid launch configuration (bad binary/model path
// or a spawn failure). It is fatal to Start and surfaced before any process
// state is created.
type launchError struct{ msg string }

func (e launchError) Error() string { return "launch: " + e.msg }

// ErrLaunch constructs a launchError.
func ErrLaunch(msg string) error { return launchError{msg: msg} }

// IsLaunchError reports whether err indicates a failed launch.
func IsLaunchError(err error) bool {
	var le launchError
	return errors.As(err, &le)
}

// ErrAlreadyRunning is returned when Start is called while a server is live.
var ErrAlreadyRunning = errors.New("server already running")

// ErrNotRunning is returned when Stop is called with no live server.
// Stopped never transitions directly to Stopping.
var ErrNotRunning = errors.New("server not running")
