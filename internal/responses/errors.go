package responses

import "errors"

var (
	ErrUnknownKind       = errors.New("unknown activity kind")
	ErrKindMismatch      = errors.New("payload kind does not match activity kind")
	ErrMissingActivity   = errors.New("associated_activity is required")
	ErrActivityMismatch  = errors.New("associated_activity cannot change")
	ErrNoCurrentResponse = errors.New("no current response to save")
	ErrMalformedRecord   = errors.New("malformed response record")
)
