package inference

import "errors"

// connectionError signals an unreachable endpoint. Fatal to starting a run;
// checked once up front via the models probe.
type connectionError struct{ msg string }

func (e connectionError) Error() string { return "connection: " + e.msg }

// ErrConnection constructs a connectionError.
func ErrConnection(msg string) error { return connectionError{msg: msg} }

// IsConnectionError reports whether err indicates an unreachable endpoint.
func IsConnectionError(err error) bool {
	var ce connectionError
	return errors.As(err, &ce)
}

// httpError carries a non-2xx response from the inference endpoint.
type httpError struct {
	status string
	body   string
}

func (e httpError) Error() string { return "inference http error: " + e.status + ": " + e.body }

// IsHTTPError reports whether err is a non-2xx endpoint response.
func IsHTTPError(err error) bool {
	var he httpError
	return errors.As(err, &he)
}

// ErrEmptyResponse is returned when the endpoint answered with no caption text.
var ErrEmptyResponse = errors.New("empty response from inference endpoint")
