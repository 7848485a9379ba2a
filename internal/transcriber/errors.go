package transcriber

import "errors"

// InitError marks a failure to construct the recognition engine. The session
// cannot start; the next start retries the load.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	if e == nil || e.Err == nil {
		return "engine initialization failed"
	}
	return "engine initialization failed: " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}
