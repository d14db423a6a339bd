package sbrc

import "errors"

// Domain errors for the charger bridge package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the charger.
	ErrNotConnected = errors.New("sbrc: not connected to charger")

	// ErrConnectionFailed is returned when the connection to the charger fails.
	ErrConnectionFailed = errors.New("sbrc: connection to charger failed")

	// ErrSendFailed is returned when writing a command to the charger fails.
	ErrSendFailed = errors.New("sbrc: command send failed")

	// ErrFieldParse is returned when a value expected to be an integer
	// is not. Only the offending field is skipped.
	ErrFieldParse = errors.New("sbrc: field parse failed")

	// ErrUnknownCode is returned when a bay state or module type code is
	// not present in its table. The stored value is left untouched.
	ErrUnknownCode = errors.New("sbrc: unknown code")

	// ErrUnknownModel is returned when a model id is not in the model table.
	ErrUnknownModel = errors.New("sbrc: unknown charger model")

	// ErrUnknownFeedback is returned when evaluating a feedback that does not exist.
	ErrUnknownFeedback = errors.New("sbrc: unknown feedback")

	// ErrUnknownCommand is returned for a command name the bridge does not handle.
	ErrUnknownCommand = errors.New("sbrc: unknown command")

	// ErrInvalidParameter is returned when an action or feedback option
	// fails validation.
	ErrInvalidParameter = errors.New("sbrc: invalid parameter")

	// ErrTimeout is returned when a command write hits its deadline.
	// It is wrapped together with ErrSendFailed.
	ErrTimeout = errors.New("sbrc: operation timed out")
)
