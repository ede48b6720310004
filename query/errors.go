package query

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Error kinds raised by the builder, the executor and the connection provider.
var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrQueryExecution is matched by every QueryExecutionError.
	ErrQueryExecution = errors.New("query execution failed")

	// ErrTransaction is matched by every TransactionError.
	ErrTransaction = errors.New("transaction failed")

	// ErrTransactionActive is returned when a transaction is started while the
	// same provider already runs one.
	ErrTransactionActive = errors.New("a transaction is already active on this connection")

	// ErrNoStatement is returned when a query is rendered or executed before a verb
	// was chosen, or after it has been consumed by Execute.
	ErrNoStatement = errors.New("no statement to execute")
)

// ValidationError is raised before any I/O when a statement or one of its bound
// values violates a precondition.
type ValidationError struct {
	Field  string // Placeholder, column or clause the failure refers to
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap returns the underlying error, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// QueryExecutionError wraps a failure reported by the driver while preparing,
// binding, executing or fetching a statement.
type QueryExecutionError struct {
	Op      string // prepare, query, exec, fetch or count
	SQL     string
	Message string
	Code    string
	Err     error
}

// Error implements the error interface.
func (e *QueryExecutionError) Error() string {
	msg := fmt.Sprintf("query execution failed (%s): %s", e.Op, e.Message)
	if e.Code != "" {
		msg += " [code " + e.Code + "]"
	}
	return msg
}

// Unwrap returns the driver error.
func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrQueryExecution.
func (e *QueryExecutionError) Is(target error) bool {
	return target == ErrQueryExecution
}

// NewQueryExecutionError wraps err raised during op for the given SQL text.
func NewQueryExecutionError(op, sql string, err error) *QueryExecutionError {
	return &QueryExecutionError{
		Op:      op,
		SQL:     sql,
		Message: err.Error(),
		Code:    DriverCode(err),
		Err:     err,
	}
}

// TransactionError wraps a failure inside a transactional unit of work. The
// transaction has been rolled back when it is returned.
type TransactionError struct {
	ID      string
	Message string
	Code    string
	Err     error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return "transaction failed: " + e.Message
}

// Unwrap returns the underlying error.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransaction.
func (e *TransactionError) Is(target error) bool {
	return target == ErrTransaction
}

// NewTransactionError wraps err raised by transaction id.
func NewTransactionError(id string, err error) *TransactionError {
	return &TransactionError{
		ID:      id,
		Message: err.Error(),
		Code:    DriverCode(err),
		Err:     err,
	}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsQueryExecutionError reports whether err is or wraps a QueryExecutionError.
func IsQueryExecutionError(err error) bool {
	return errors.Is(err, ErrQueryExecution)
}

// IsTransactionError reports whether err is or wraps a TransactionError.
func IsTransactionError(err error) bool {
	return errors.Is(err, ErrTransaction)
}

// errorCoder is implemented by drivers exposing a textual error code.
type errorCoder interface {
	Code() string
}

// sqlStateError is implemented by drivers exposing a SQLSTATE.
type sqlStateError interface {
	SQLState() string
}

// errorNumberer is implemented by drivers exposing a numeric error code.
type errorNumberer interface {
	Number() uint16
}

// DriverCode extracts the driver specific error code from err, or returns an
// empty string when the driver does not report one.
func DriverCode(err error) string {
	if err == nil {
		return ""
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code())
	}
	var coder errorCoder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	var state sqlStateError
	if errors.As(err, &state) {
		return state.SQLState()
	}
	var num errorNumberer
	if errors.As(err, &num) {
		return strconv.Itoa(int(num.Number()))
	}
	return ""
}

// NoStatementError returns the ValidationError reported when a statement has no
// verb. It matches both ErrValidation and ErrNoStatement.
func NoStatementError() error {
	return &ValidationError{Field: "statement", Reason: ErrNoStatement.Error(), Err: ErrNoStatement}
}
