// pkg/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// MalformedRecordError indicates a record could not be constructed, e.g. an
// empty or duplicate record ID. It is surfaced as a validation concern and
// never propagated as a run failure on its own.
type MalformedRecordError struct {
	RecordID string
	Reason   string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record %s: %s", e.RecordID, e.Reason)
}

// IsMalformedRecord reports whether err is a MalformedRecordError.
func IsMalformedRecord(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}

// ConnectorError wraps a failure raised by a source or destination connector.
// Connector failures are the retryable class of run errors.
type ConnectorError struct {
	Connector string // connector name, e.g. "postgres-destination"
	Op        string // operation, e.g. "fetch", "upsert_batch"
	Err       error
}

// Error implements the error interface.
func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.Connector, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewConnectorError wraps err with connector and operation context.
func NewConnectorError(connector, op string, err error) *ConnectorError {
	return &ConnectorError{Connector: connector, Op: op, Err: err}
}

// IsConnectorError reports whether err is (or wraps) a ConnectorError.
func IsConnectorError(err error) bool {
	var target *ConnectorError
	return errors.As(err, &target)
}

// ConfigurationError indicates invalid rule or stage configuration. It is
// fatal immediately: the run never starts and no retry is attempted.
type ConfigurationError struct {
	Component string
	Reason    string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Component, e.Reason)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
