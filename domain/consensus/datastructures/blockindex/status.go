package blockindex

import (
	"fmt"
	"strings"
)

// Status is the validation state of a block index entry. The low bits hold
// a validity level, each level implying all the levels below it. The high
// bits mark the entry as failed, which is terminal.
type Status uint32

const (
	// StatusNone is the zero status. No indexed entry ever has it.
	StatusNone Status = 0

	// StatusHeaderValid means the header passed its context-free checks and
	// its parent is known.
	StatusHeaderValid Status = 1

	// StatusTreeValid means the header passed its contextual checks against
	// its ancestors.
	StatusTreeValid Status = 2

	// StatusTransactionsValid means the block body is stored and passed its
	// context-free checks.
	StatusTransactionsValid Status = 3

	// StatusChainValid means the block passed all contextual body checks
	// and was applied to the ledger at least once.
	StatusChainValid Status = 4

	// StatusScriptsValid means the block scripts were verified, or skipped
	// under the assumed-valid rule.
	StatusScriptsValid Status = 5

	statusLevelMask Status = 7

	// StatusFailedValidation marks an entry that failed validation itself.
	StatusFailedValidation Status = 32

	// StatusFailedAncestor marks an entry that descends from a failed entry.
	StatusFailedAncestor Status = 64

	statusFailedMask = StatusFailedValidation | StatusFailedAncestor
)

// Level returns the validity level, discarding the failure bits.
func (s Status) Level() Status {
	return s & statusLevelMask
}

// IsFailed returns whether the entry or one of its ancestors failed
// validation.
func (s Status) IsFailed() bool {
	return s&statusFailedMask != 0
}

// IsValid returns whether the status is not failed and at least at the
// given level.
func (s Status) IsValid(level Status) bool {
	return !s.IsFailed() && s.Level() >= level
}

var levelNames = map[Status]string{
	StatusNone:              "none",
	StatusHeaderValid:       "header-valid",
	StatusTreeValid:         "tree-valid",
	StatusTransactionsValid: "transactions-valid",
	StatusChainValid:        "chain-valid",
	StatusScriptsValid:      "scripts-valid",
}

func (s Status) String() string {
	name, ok := levelNames[s.Level()]
	if !ok {
		name = fmt.Sprintf("level-%d", s.Level())
	}
	var flags []string
	if s&StatusFailedValidation != 0 {
		flags = append(flags, "failed")
	}
	if s&StatusFailedAncestor != 0 {
		flags = append(flags, "failed-ancestor")
	}
	if len(flags) == 0 {
		return name
	}
	return name + "|" + strings.Join(flags, "|")
}
