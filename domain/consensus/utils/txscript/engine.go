// Copyright (c) 2013-2018 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"fmt"

	btcscript "github.com/btcsuite/btcd/txscript"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// ScriptFlags is a bitmask defining additional operations or tests that will be
// done when executing a script pair.
type ScriptFlags uint32

const (
	// ScriptNoFlags executes OP_CHECKLOCKTIMEVERIFY and
	// OP_CHECKSEQUENCEVERIFY as the no-ops they were before activation.
	ScriptNoFlags ScriptFlags = 0

	// ScriptVerifyCheckLockTimeVerify defines whether to verify that
	// a transaction output is spendable based on the locktime.
	// This is BIP0065.
	ScriptVerifyCheckLockTimeVerify ScriptFlags = 1 << iota

	// ScriptVerifyCheckSequenceVerify defines whether to allow execution
	// pathways of a script to be restricted based on the age of the output
	// being spent. This is BIP0112.
	ScriptVerifyCheckSequenceVerify
)

const (
	// MaxStackSize is the maximum combined height of stack and alt stack
	// during execution.
	MaxStackSize = 1000

	// MaxScriptSize is the maximum allowed length of a raw script.
	MaxScriptSize = 10000

	// MaxScriptElementSize is the max number of bytes allowed in a single
	// pushed element.
	MaxScriptElementSize = 520

	// MaxOpsPerScript is the maximum number of non-push operations.
	MaxOpsPerScript = 201

	// scriptVersion is the only script version understood by the
	// tokenizer.
	scriptVersion = 0
)

// Conditional execution constants.
const (
	opCondFalse = 0
	opCondTrue  = 1
	opCondSkip  = 2
)

// Engine is the virtual machine that executes the signature script of a
// transaction input followed by the script public key of the coin it spends.
type Engine struct {
	scripts   [][]byte
	scriptIdx int
	tx        *externalapi.DomainTransaction
	txIdx     int
	flags     ScriptFlags
	sigCache  *SigCache

	dstack    stack
	condStack []int
	numOps    int
}

// hasFlag returns whether the script engine instance has the passed flag set.
func (vm *Engine) hasFlag(flag ScriptFlags) bool {
	return vm.flags&flag == flag
}

// isBranchExecuting returns whether or not the current conditional branch is
// actively executing. For example, when the data stack has an OP_FALSE on it
// and an OP_IF is encountered, the branch is inactive until an OP_ELSE or
// OP_ENDIF is encountered. It properly handles nested conditionals.
func (vm *Engine) isBranchExecuting() bool {
	if len(vm.condStack) == 0 {
		return true
	}
	return vm.condStack[len(vm.condStack)-1] == opCondTrue
}

// NewEngine returns a new script engine for the provided script public key,
// transaction, and input index. The flags modify the behavior of the script
// engine according to the description provided by each flag. sigCache may
// be nil.
func NewEngine(scriptPubKey []byte, tx *externalapi.DomainTransaction, txIdx int,
	flags ScriptFlags, sigCache *SigCache) (*Engine, error) {

	if txIdx < 0 || txIdx >= len(tx.Inputs) {
		str := fmt.Sprintf("transaction input index %d is negative or "+
			">= %d", txIdx, len(tx.Inputs))
		return nil, scriptError(ErrInvalidIndex, str)
	}
	scriptSig := tx.Inputs[txIdx].SignatureScript

	// The clean stack flag (ScriptVerifyCleanStack) is not allowed without
	// the push only flag, so the signature script must always be push only.
	for _, script := range [][]byte{scriptSig, scriptPubKey} {
		if len(script) > MaxScriptSize {
			str := fmt.Sprintf("script size %d is larger than max "+
				"allowed size %d", len(script), MaxScriptSize)
			return nil, scriptError(ErrScriptTooBig, str)
		}
		err := checkScriptParses(script)
		if err != nil {
			return nil, err
		}
	}
	if !btcscript.IsPushOnlyScript(scriptSig) {
		return nil, scriptError(ErrNotPushOnly, "signature script is not push only")
	}

	return &Engine{
		scripts:  [][]byte{scriptSig, scriptPubKey},
		tx:       tx,
		txIdx:    txIdx,
		flags:    flags,
		sigCache: sigCache,
	}, nil
}

// checkScriptParses returns an error if the provided script fails to parse.
func checkScriptParses(script []byte) error {
	tokenizer := btcscript.MakeScriptTokenizer(scriptVersion, script)
	for tokenizer.Next() {
	}
	if err := tokenizer.Err(); err != nil {
		return scriptError(ErrMalformedScript, err.Error())
	}
	return nil
}

// Execute will execute all scripts in the script engine and return either nil
// for successful validation or an error if one occurred.
func (vm *Engine) Execute() error {
	for vm.scriptIdx = range vm.scripts {
		vm.numOps = 0
		tokenizer := btcscript.MakeScriptTokenizer(scriptVersion, vm.scripts[vm.scriptIdx])
		for tokenizer.Next() {
			err := vm.executeOpcode(tokenizer.Opcode(), tokenizer.Data())
			if err != nil {
				return err
			}
		}
		if err := tokenizer.Err(); err != nil {
			return scriptError(ErrMalformedScript, err.Error())
		}

		if len(vm.condStack) != 0 {
			return scriptError(ErrUnbalancedConditional,
				"end of script reached in conditional execution")
		}
	}

	log.Tracef("Stack after executing input %d of the transaction:\n%s", vm.txIdx, &vm.dstack)

	if vm.dstack.Depth() < 1 {
		return scriptError(ErrEmptyStack,
			"stack empty at end of script execution")
	}
	v, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}
	if !v {
		return scriptError(ErrEvalFalse,
			"false stack entry at end of script execution")
	}
	return nil
}

// currentScript returns the script being executed, which is the script
// public key once the signature script is done.
func (vm *Engine) currentScript() []byte {
	return vm.scripts[vm.scriptIdx]
}

func (vm *Engine) executeOpcode(opcode byte, data []byte) error {
	if len(data) > MaxScriptElementSize {
		str := fmt.Sprintf("element size %d exceeds max allowed size %d",
			len(data), MaxScriptElementSize)
		return scriptError(ErrElementTooBig, str)
	}

	// Note that this includes OP_RESERVED which counts as a push operation.
	if opcode > btcscript.OP_16 {
		vm.numOps++
		if vm.numOps > MaxOpsPerScript {
			str := fmt.Sprintf("exceeded max operation limit of %d",
				MaxOpsPerScript)
			return scriptError(ErrTooManyOperations, str)
		}
	}

	// Nothing left to do when this is not a conditional opcode and it is
	// not in an executing branch.
	if !vm.isBranchExecuting() && !isConditional(opcode) {
		return nil
	}

	err := vm.dispatch(opcode, data)
	if err != nil {
		return err
	}

	if vm.dstack.Depth() > MaxStackSize {
		str := fmt.Sprintf("stack size %d > max allowed %d",
			vm.dstack.Depth(), MaxStackSize)
		return scriptError(ErrStackOverflow, str)
	}
	return nil
}

func isConditional(opcode byte) bool {
	switch opcode {
	case btcscript.OP_IF, btcscript.OP_NOTIF, btcscript.OP_ELSE, btcscript.OP_ENDIF:
		return true
	}
	return false
}
