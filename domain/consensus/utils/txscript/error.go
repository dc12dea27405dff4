// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
)

// ErrorCode identifies a kind of script error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrInternal is returned if internal consistency checks fail.
	ErrInternal ErrorCode = iota

	// ErrInvalidIndex is returned when an out-of-bounds index is passed to
	// a function.
	ErrInvalidIndex

	// ErrScriptTooBig is returned if a script is larger than MaxScriptSize.
	ErrScriptTooBig

	// ErrElementTooBig is returned if the size of an element to be pushed
	// to the stack is over MaxScriptElementSize.
	ErrElementTooBig

	// ErrTooManyOperations is returned if a script has more than
	// MaxOpsPerScript opcodes that do not push data.
	ErrTooManyOperations

	// ErrStackOverflow is returned when stack and altstack combined depth
	// is over the limit.
	ErrStackOverflow

	// ErrMalformedScript is returned when a script cannot be parsed.
	ErrMalformedScript

	// ErrNotPushOnly is returned when a signature script contains
	// opcodes that are not data pushes.
	ErrNotPushOnly

	// ErrUnsupportedOpcode is returned when an opcode this engine does
	// not execute is encountered in an executed branch.
	ErrUnsupportedOpcode

	// ErrEarlyReturn is returned when OP_RETURN is executed in the script.
	ErrEarlyReturn

	// ErrEmptyStack is returned when the script evaluated without error,
	// but terminated with an empty top stack element.
	ErrEmptyStack

	// ErrEvalFalse is returned when the script evaluated without error but
	// terminated with a false top stack element.
	ErrEvalFalse

	// ErrVerify is returned when OP_VERIFY is encountered in a script and
	// the top item on the data stack does not evaluate to true.
	ErrVerify

	// ErrEqualVerify is returned when OP_EQUALVERIFY is encountered in a
	// script and the top item on the data stack does not evaluate to true.
	ErrEqualVerify

	// ErrCheckSigVerify is returned when OP_CHECKSIGVERIFY is encountered
	// in a script and the top item on the data stack does not evaluate to
	// true.
	ErrCheckSigVerify

	// ErrUnbalancedConditional is returned when an OP_ELSE or OP_ENDIF is
	// encountered in a script without first having an OP_IF or OP_NOTIF or
	// the end of script is reached without encountering an OP_ENDIF when
	// an OP_IF or OP_NOTIF was previously encountered.
	ErrUnbalancedConditional

	// ErrInvalidStackOperation is returned when a stack operation is
	// attempted with a number that is invalid for the current stack size.
	ErrInvalidStackOperation

	// ErrNumberTooBig is returned when the argument for an opcode that
	// expects numeric input is larger than the expected maximum number of
	// bytes.
	ErrNumberTooBig

	// ErrMinimalData is returned when a number is not encoded with the
	// minimal number of bytes.
	ErrMinimalData

	// ErrSigLength is returned when a signature is not empty and not
	// 64 bytes followed by a hash type.
	ErrSigLength

	// ErrInvalidSigHashType is returned when a signature hash type is not
	// one of the supported types.
	ErrInvalidSigHashType

	// ErrPubKeyFormat is returned when the public key passed to
	// OP_CHECKSIG cannot be parsed.
	ErrPubKeyFormat

	// ErrNegativeLockTime is returned when a script contains an opcode that
	// interprets a negative lock time.
	ErrNegativeLockTime

	// ErrUnsatisfiedLockTime is returned when a script contains an opcode
	// that involves a lock time and the required lock time has not been
	// reached.
	ErrUnsatisfiedLockTime
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInternal:              "ErrInternal",
	ErrInvalidIndex:          "ErrInvalidIndex",
	ErrScriptTooBig:          "ErrScriptTooBig",
	ErrElementTooBig:         "ErrElementTooBig",
	ErrTooManyOperations:     "ErrTooManyOperations",
	ErrStackOverflow:         "ErrStackOverflow",
	ErrMalformedScript:       "ErrMalformedScript",
	ErrNotPushOnly:           "ErrNotPushOnly",
	ErrUnsupportedOpcode:     "ErrUnsupportedOpcode",
	ErrEarlyReturn:           "ErrEarlyReturn",
	ErrEmptyStack:            "ErrEmptyStack",
	ErrEvalFalse:             "ErrEvalFalse",
	ErrVerify:                "ErrVerify",
	ErrEqualVerify:           "ErrEqualVerify",
	ErrCheckSigVerify:        "ErrCheckSigVerify",
	ErrUnbalancedConditional: "ErrUnbalancedConditional",
	ErrInvalidStackOperation: "ErrInvalidStackOperation",
	ErrNumberTooBig:          "ErrNumberTooBig",
	ErrMinimalData:           "ErrMinimalData",
	ErrSigLength:             "ErrSigLength",
	ErrInvalidSigHashType:    "ErrInvalidSigHashType",
	ErrPubKeyFormat:          "ErrPubKeyFormat",
	ErrNegativeLockTime:      "ErrNegativeLockTime",
	ErrUnsatisfiedLockTime:   "ErrUnsatisfiedLockTime",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a script-related error. Every Error unwraps to
// ruleerrors.ErrScriptMalformed or ruleerrors.ErrScriptValidation, so callers
// can treat script failures as consensus violations.
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the rule error this script error is a case of.
func (e Error) Unwrap() error {
	switch e.ErrorCode {
	case ErrScriptTooBig, ErrMalformedScript, ErrNotPushOnly:
		return ruleerrors.ErrScriptMalformed
	}
	return ruleerrors.ErrScriptValidation
}

// scriptError creates an Error given a set of arguments.
func scriptError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not the provided error is a script error with
// the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var serr Error
	return errors.As(err, &serr) && serr.ErrorCode == c
}
