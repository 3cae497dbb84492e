package mailbox

import "errors"

// Sentinel errors for the mailbox service layer.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedProvider = errors.New("unsupported email provider")
	ErrInvalidAction       = errors.New("invalid email action")
	ErrMissingCredentials  = errors.New("account credentials are incomplete")
)
