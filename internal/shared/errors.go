package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoCredential     = fmt.Errorf("no stored credential")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Acquisition errors
	ErrProviderUnavailable = fmt.Errorf("conversion provider unavailable")
	ErrProviderNoResult    = fmt.Errorf("conversion provider returned no result")
	ErrTransferFailed      = fmt.Errorf("audio transfer failed")
	ErrStorageWriteFailed  = fmt.Errorf("storage write failed")

	// Persistence errors
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrRecordConflict = fmt.Errorf("record conflict")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
