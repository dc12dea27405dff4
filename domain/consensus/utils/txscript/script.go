// Package txscript implements the transaction script language: a
// stack-based engine that runs an input's signature script followed by the
// script public key of the coin it spends.
//
// Signature scripts must be push only. OP_CHECKSIG verifies Schnorr
// signatures over the transaction's signature hash. Opcode values and script
// parsing follow the Bitcoin encoding.
package txscript

import (
	btcscript "github.com/btcsuite/btcd/txscript"
)

// IsUnspendable returns whether the passed script public key can never be
// spent, either because it starts with OP_RETURN, is too large, or does not
// parse. Outputs locked by such scripts never enter the ledger.
func IsUnspendable(scriptPublicKey []byte) bool {
	return btcscript.IsUnspendable(scriptPublicKey)
}

// IsPushOnlyScript returns whether the script only pushes data.
func IsPushOnlyScript(script []byte) bool {
	return btcscript.IsPushOnlyScript(script)
}

// PushedData returns the data pushed by a push-only script, or an error if
// the script contains other opcodes or does not parse.
func PushedData(script []byte) ([][]byte, error) {
	if !IsPushOnlyScript(script) {
		return nil, scriptError(ErrNotPushOnly, "script is not push only")
	}
	var data [][]byte
	tokenizer := btcscript.MakeScriptTokenizer(scriptVersion, script)
	for tokenizer.Next() {
		opcode := tokenizer.Opcode()
		switch {
		case opcode == btcscript.OP_0:
			data = append(data, nil)
		case opcode >= btcscript.OP_1 && opcode <= btcscript.OP_16:
			data = append(data, scriptNum(opcode-(btcscript.OP_1-1)).Bytes())
		case opcode == btcscript.OP_1NEGATE:
			data = append(data, scriptNum(-1).Bytes())
		default:
			data = append(data, tokenizer.Data())
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, scriptError(ErrMalformedScript, err.Error())
	}
	return data, nil
}

// ExtractScriptNum interprets data pushed by a script as a number, as the
// engine does for lock time operands.
func ExtractScriptNum(data []byte) (int64, error) {
	n, err := makeScriptNum(data, true, lockTimeScriptNumLen)
	return int64(n), err
}

// FirstPushedNumber interprets the first push of script as a number. It is
// used to read the block height committed to by a coinbase signature
// script, which may contain arbitrary data after that push.
func FirstPushedNumber(script []byte) (int64, error) {
	tokenizer := btcscript.MakeScriptTokenizer(scriptVersion, script)
	if !tokenizer.Next() {
		if err := tokenizer.Err(); err != nil {
			return 0, scriptError(ErrMalformedScript, err.Error())
		}
		return 0, scriptError(ErrMalformedScript, "script is empty")
	}

	opcode := tokenizer.Opcode()
	switch {
	case opcode == btcscript.OP_0:
		return 0, nil
	case opcode >= btcscript.OP_1 && opcode <= btcscript.OP_16:
		return int64(opcode - (btcscript.OP_1 - 1)), nil
	case opcode <= btcscript.OP_PUSHDATA4:
		return ExtractScriptNum(tokenizer.Data())
	}
	return 0, scriptError(ErrNotPushOnly, "script does not start with a data push")
}
