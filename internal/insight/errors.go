package insight

import (
	"errors"
	"fmt"
)

// DataFormatError indicates an unreadable, malformed or empty CSV upload.
type DataFormatError struct {
	Reason string
	Err    error
}

func (e *DataFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data format: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("data format: %s", e.Reason)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// ErrorKind classifies completion-service failures.
type ErrorKind string

const (
	KindInvalidKey ErrorKind = "invalid-key"
	KindQuota      ErrorKind = "quota"
	KindOther      ErrorKind = "other"
)

// ServiceError is a classified completion-service failure.
type ServiceError struct {
	Kind ErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service error (%s)", e.Kind)
	}
	return fmt.Sprintf("service error (%s): %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ResponseParseError indicates the service returned text that is not the
// expected JSON document. Title is suitable for display.
type ResponseParseError struct {
	Title string
	Err   error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Title, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// ChartDataError indicates valid JSON whose chart table is malformed.
type ChartDataError struct {
	Finding int
	Reason  string
}

func (e *ChartDataError) Error() string {
	return fmt.Sprintf("chart data (finding %d): %s", e.Finding, e.Reason)
}

// Notice is the user-facing rendition of an error.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Describe maps any pipeline error to a title and message.
func Describe(err error) Notice {
	if err == nil {
		return Notice{}
	}
	var (
		dfe *DataFormatError
		se  *ServiceError
		rpe *ResponseParseError
		cde *ChartDataError
	)
	switch {
	case errors.As(err, &dfe):
		return Notice{Title: "Could not read the file", Message: "The file does not look like a CSV with a header and at least one data row (" + dfe.Reason + ")."}
	case errors.As(err, &se):
		switch se.Kind {
		case KindInvalidKey:
			return Notice{Title: "Invalid API key", Message: "The completion service rejected the configured API key. Check api_key in your config."}
		case KindQuota:
			return Notice{Title: "Quota exceeded", Message: "The completion service is rate limiting requests. Wait a moment and try again."}
		default:
			return Notice{Title: "Service error", Message: "The completion service failed: " + se.Error()}
		}
	case errors.As(err, &rpe):
		return Notice{Title: rpe.Title, Message: "The model returned a response that could not be parsed. Try asking again."}
	case errors.As(err, &cde):
		return Notice{Title: "Chart data error", Message: "The model returned chart data that could not be plotted: " + cde.Reason + "."}
	}
	return Notice{Title: "Unexpected error", Message: err.Error()}
}
