// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcscript "github.com/btcsuite/btcd/txscript"
	"github.com/kaspanet/go-secp256k1"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
)

// dispatch executes an opcode in an executing branch, or a conditional
// opcode in any branch.
func (vm *Engine) dispatch(opcode byte, data []byte) error {
	switch {
	case opcode == btcscript.OP_0:
		vm.dstack.PushByteArray(nil)
		return nil

	case opcode <= btcscript.OP_PUSHDATA4:
		vm.dstack.PushByteArray(data)
		return nil

	case opcode == btcscript.OP_1NEGATE:
		vm.dstack.PushInt(scriptNum(-1))
		return nil

	case opcode >= btcscript.OP_1 && opcode <= btcscript.OP_16:
		vm.dstack.PushInt(scriptNum(opcode - (btcscript.OP_1 - 1)))
		return nil
	}

	switch opcode {
	case btcscript.OP_NOP, btcscript.OP_NOP1, btcscript.OP_NOP4, btcscript.OP_NOP5,
		btcscript.OP_NOP6, btcscript.OP_NOP7, btcscript.OP_NOP8, btcscript.OP_NOP9,
		btcscript.OP_NOP10:
		return nil

	case btcscript.OP_IF:
		return vm.opcodeIf(false)
	case btcscript.OP_NOTIF:
		return vm.opcodeIf(true)
	case btcscript.OP_ELSE:
		return vm.opcodeElse()
	case btcscript.OP_ENDIF:
		return vm.opcodeEndif()

	case btcscript.OP_VERIFY:
		return vm.abstractVerify(ErrVerify)
	case btcscript.OP_RETURN:
		return scriptError(ErrEarlyReturn, "script returned early")

	case btcscript.OP_DROP:
		return vm.dstack.DropN(1)
	case btcscript.OP_DUP:
		return vm.dstack.DupN(1)

	case btcscript.OP_EQUAL:
		return vm.opcodeEqual()
	case btcscript.OP_EQUALVERIFY:
		err := vm.opcodeEqual()
		if err != nil {
			return err
		}
		return vm.abstractVerify(ErrEqualVerify)

	case btcscript.OP_SHA256:
		return vm.hashTop(chainhash.HashB)
	case btcscript.OP_HASH160:
		return vm.hashTop(btcutil.Hash160)
	case btcscript.OP_HASH256:
		return vm.hashTop(chainhash.DoubleHashB)

	case btcscript.OP_CHECKSIG:
		return vm.opcodeCheckSig()
	case btcscript.OP_CHECKSIGVERIFY:
		err := vm.opcodeCheckSig()
		if err != nil {
			return err
		}
		return vm.abstractVerify(ErrCheckSigVerify)

	case btcscript.OP_CHECKLOCKTIMEVERIFY:
		return vm.opcodeCheckLockTimeVerify()
	case btcscript.OP_CHECKSEQUENCEVERIFY:
		return vm.opcodeCheckSequenceVerify()
	}

	str := fmt.Sprintf("attempt to execute unsupported opcode 0x%02x", opcode)
	return scriptError(ErrUnsupportedOpcode, str)
}

// opcodeIf treats the top item on the data stack as a boolean and removes
// it. When negate is set, the branch executes if the item is false.
//
// Conditional stack transformation: [... x] -> [... x cond]
func (vm *Engine) opcodeIf(negate bool) error {
	condVal := opCondFalse
	if vm.isBranchExecuting() {
		ok, err := vm.dstack.PopBool()
		if err != nil {
			return err
		}
		if ok != negate {
			condVal = opCondTrue
		}
	} else {
		condVal = opCondSkip
	}
	vm.condStack = append(vm.condStack, condVal)
	return nil
}

// opcodeElse inverts conditional execution for other half of if/else/endif.
//
// Conditional stack transformation: [... OpCondTrue] -> [... OpCondFalse]
func (vm *Engine) opcodeElse() error {
	if len(vm.condStack) == 0 {
		return scriptError(ErrUnbalancedConditional,
			"encountered opcode OP_ELSE with no matching opcode to begin conditional execution")
	}

	conditionalIdx := len(vm.condStack) - 1
	switch vm.condStack[conditionalIdx] {
	case opCondTrue:
		vm.condStack[conditionalIdx] = opCondFalse
	case opCondFalse:
		vm.condStack[conditionalIdx] = opCondTrue
	case opCondSkip:
		// Value doesn't change in skip since it indicates this opcode
		// is nested in a non-executed branch.
	}
	return nil
}

// opcodeEndif terminates a conditional block, removing the value from the
// conditional execution stack.
//
// Conditional stack transformation: [... cond] -> [...]
func (vm *Engine) opcodeEndif() error {
	if len(vm.condStack) == 0 {
		return scriptError(ErrUnbalancedConditional,
			"encountered opcode OP_ENDIF with no matching opcode to begin conditional execution")
	}

	vm.condStack = vm.condStack[:len(vm.condStack)-1]
	return nil
}

// abstractVerify examines the top item on the data stack as a boolean value
// and verifies it evaluates to true. An error is returned either when there
// is no item on the stack or when that item evaluates to false.
func (vm *Engine) abstractVerify(c ErrorCode) error {
	verified, err := vm.dstack.PopBool()
	if err != nil {
		return err
	}

	if !verified {
		return scriptError(c, fmt.Sprintf("%s failed", c))
	}
	return nil
}

// opcodeEqual removes the top 2 items of the data stack, compares them as raw
// bytes, and pushes the result, encoded as a boolean, back to the stack.
//
// Stack transformation: [... x1 x2] -> [... bool]
func (vm *Engine) opcodeEqual() error {
	a, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	b, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	vm.dstack.PushBool(bytes.Equal(a, b))
	return nil
}

// hashTop replaces the top item of the data stack with its hash.
//
// Stack transformation: [... x1] -> [... hash(x1)]
func (vm *Engine) hashTop(hash func([]byte) []byte) error {
	buf, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	vm.dstack.PushByteArray(hash(buf))
	return nil
}

// opcodeCheckSig treats the top 2 items on the stack as a public key and a
// signature and replaces them with a bool which indicates if the signature
// was successfully verified.
//
// The signature is a 64-byte Schnorr signature followed by a hash type byte.
// The public key is a 32-byte x-only key. An empty signature pushes false.
//
// Stack transformation: [... signature pubkey] -> [... bool]
func (vm *Engine) opcodeCheckSig() error {
	pkBytes, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}
	fullSigBytes, err := vm.dstack.PopByteArray()
	if err != nil {
		return err
	}

	if len(fullSigBytes) == 0 {
		vm.dstack.PushBool(false)
		return nil
	}
	if len(fullSigBytes) != 65 {
		str := fmt.Sprintf("signature is %d bytes, expected 65", len(fullSigBytes))
		return scriptError(ErrSigLength, str)
	}

	hashType := consensushashing.SigHashType(fullSigBytes[64])
	if !hashType.IsStandardSigHashType() {
		str := fmt.Sprintf("invalid hash type 0x%x", hashType)
		return scriptError(ErrInvalidSigHashType, str)
	}
	sigBytes := fullSigBytes[:64]

	pubKey, err := secp256k1.DeserializeSchnorrPubKey(pkBytes)
	if err != nil {
		str := fmt.Sprintf("unsupported public key: %s", err)
		return scriptError(ErrPubKeyFormat, str)
	}
	signature, err := secp256k1.DeserializeSchnorrSignatureFromSlice(sigBytes)
	if err != nil {
		vm.dstack.PushBool(false)
		return nil
	}

	sigHash, err := consensushashing.CalculateSignatureHash(vm.currentScript(), hashType, vm.tx, vm.txIdx)
	if err != nil {
		vm.dstack.PushBool(false)
		return nil
	}
	secpHash := secp256k1.Hash(*sigHash.ByteArray())

	var valid bool
	if vm.sigCache != nil {
		valid = vm.sigCache.Exists(secpHash, signature, pubKey)
		if !valid && pubKey.SchnorrVerify(&secpHash, signature) {
			vm.sigCache.Add(secpHash, signature, pubKey)
			valid = true
		}
	} else {
		valid = pubKey.SchnorrVerify(&secpHash, signature)
	}

	vm.dstack.PushBool(valid)
	return nil
}

// verifyLockTime is a helper function used to validate locktimes.
func verifyLockTime(txLockTime, threshold, lockTime int64) error {
	// The lockTimes in both the script and transaction must be of the same
	// type.
	if !((txLockTime < threshold && lockTime < threshold) ||
		(txLockTime >= threshold && lockTime >= threshold)) {
		str := fmt.Sprintf("mismatched locktime types -- tx locktime "+
			"%d, stack locktime %d", txLockTime, lockTime)
		return scriptError(ErrUnsatisfiedLockTime, str)
	}

	if lockTime > txLockTime {
		str := fmt.Sprintf("locktime requirement not satisfied -- "+
			"locktime is greater than the transaction locktime: "+
			"%d > %d", lockTime, txLockTime)
		return scriptError(ErrUnsatisfiedLockTime, str)
	}

	return nil
}

// opcodeCheckLockTimeVerify compares the top item on the data stack to the
// LockTime field of the transaction containing the script signature
// validating if the transaction outputs are spendable yet. If flag
// ScriptVerifyCheckLockTimeVerify is not set, the code continues as if OP_NOP2
// were executed.
func (vm *Engine) opcodeCheckLockTimeVerify() error {
	if !vm.hasFlag(ScriptVerifyCheckLockTimeVerify) {
		return nil
	}

	// The current transaction locktime is a uint32 resulting in a maximum
	// locktime of 2^32-1, so the operand is interpreted as a 5-byte number.
	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	lockTime, err := makeScriptNum(so, true, lockTimeScriptNumLen)
	if err != nil {
		return err
	}

	// In the rare event that the argument needs to be < 0 due to some
	// arithmetic being done first, you can always use
	// 0 OP_MAX OP_CHECKLOCKTIMEVERIFY.
	if lockTime < 0 {
		str := fmt.Sprintf("negative lock time: %d", lockTime)
		return scriptError(ErrNegativeLockTime, str)
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if the
	// value is before the LockTimeThreshold. When it is under the
	// threshold it is a block height.
	err = verifyLockTime(int64(vm.tx.LockTime), constants.LockTimeThreshold,
		int64(lockTime))
	if err != nil {
		return err
	}

	// The lock time feature can also be disabled, thereby bypassing
	// OP_CHECKLOCKTIMEVERIFY, if every transaction input has been finalized by
	// setting its sequence to the maximum value. Requiring a non-final
	// sequence on the input being verified prevents that bypass.
	if vm.tx.Inputs[vm.txIdx].Sequence == constants.MaxTxInSequenceNum {
		return scriptError(ErrUnsatisfiedLockTime,
			"transaction input is finalized")
	}

	return nil
}

// opcodeCheckSequenceVerify compares the top item on the data stack to the
// Sequence field of the input being validated, enforcing the relative lock
// time of the output being spent. If flag ScriptVerifyCheckSequenceVerify is
// not set, the code continues as if OP_NOP3 were executed.
func (vm *Engine) opcodeCheckSequenceVerify() error {
	if !vm.hasFlag(ScriptVerifyCheckSequenceVerify) {
		return nil
	}

	so, err := vm.dstack.PeekByteArray(0)
	if err != nil {
		return err
	}
	stackSequence, err := makeScriptNum(so, true, lockTimeScriptNumLen)
	if err != nil {
		return err
	}

	// In the rare event that the argument needs to be < 0 due to some
	// arithmetic being done first, you can always use
	// 0 OP_MAX OP_CHECKSEQUENCEVERIFY.
	if stackSequence < 0 {
		str := fmt.Sprintf("negative sequence: %d", stackSequence)
		return scriptError(ErrNegativeLockTime, str)
	}

	sequence := int64(stackSequence)

	// To provide for future soft-fork extensibility, if the
	// operand has the disabled lock-time flag set,
	// CHECKSEQUENCEVERIFY behaves as a NOP.
	if sequence&int64(constants.SequenceLockTimeDisabled) != 0 {
		return nil
	}

	// Transaction version numbers not high enough to trigger CSV rules must
	// fail.
	if vm.tx.Version < 2 {
		str := fmt.Sprintf("invalid transaction version: %d",
			vm.tx.Version)
		return scriptError(ErrUnsatisfiedLockTime, str)
	}

	// Sequence numbers with their most significant bit set are not
	// consensus constrained. Testing that the transaction's sequence
	// number does not have this bit set prevents using this property
	// to get around a CHECKSEQUENCEVERIFY check.
	txSequence := int64(vm.tx.Inputs[vm.txIdx].Sequence)
	if txSequence&int64(constants.SequenceLockTimeDisabled) != 0 {
		str := fmt.Sprintf("transaction sequence has sequence "+
			"locktime disabled bit set: 0x%x", txSequence)
		return scriptError(ErrUnsatisfiedLockTime, str)
	}

	// Mask off non-consensus bits before doing comparisons.
	lockTimeMask := int64(constants.SequenceLockTimeIsSeconds |
		constants.SequenceLockTimeMask)
	return verifyLockTime(txSequence&lockTimeMask,
		constants.SequenceLockTimeIsSeconds, sequence&lockTimeMask)
}
