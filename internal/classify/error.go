package classify

import "errors"

// Error carries a classified result together with the failure it was derived from.
type Error struct {
	Result
	Err error
}

// Wrap classifies err. It returns nil for a nil err and leaves an
// already classified error untouched.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Result: Classify(err), Err: err}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Of returns the classified result attached to err, classifying it on the fly
// when nothing is attached.
func Of(err error) Result {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Result
	}
	return Classify(err)
}
