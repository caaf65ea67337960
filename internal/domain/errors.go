package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// DuplicateRouteError reports an AddRoute call whose identity tuple
// (exchange, symbol, timeframe, strategy) is already registered. It signals
// a caller bug: never retried, the run should abort.
type DuplicateRouteError struct {
	Exchange   string
	Symbol     string
	Timeframe  Timeframe
	StrategyID string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate route %s:%s:%s:%s", e.Exchange, e.Symbol, e.Timeframe, e.StrategyID)
}

// TimeRegressionError reports an attempt to move the global clock backwards.
// Like DuplicateRouteError it is a programmer error and aborts the run.
type TimeRegressionError struct {
	Current   time.Time
	Requested time.Time
}

func (e *TimeRegressionError) Error() string {
	return fmt.Sprintf("global clock regression: current %s, requested %s",
		e.Current.Format(time.RFC3339), e.Requested.Format(time.RFC3339))
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when a feed connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrRouteNotFound is returned when a route identity is not registered.
	ErrRouteNotFound = errors.New("route not found")

	// ErrConfigNotFound is returned when the configuration file is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)
