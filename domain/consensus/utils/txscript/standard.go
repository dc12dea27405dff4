package txscript

import (
	"github.com/btcsuite/btcd/btcutil"
	btcscript "github.com/btcsuite/btcd/txscript"
)

// NewScriptBuilder returns a builder producing canonical data pushes.
func NewScriptBuilder() *btcscript.ScriptBuilder {
	return btcscript.NewScriptBuilder()
}

// PayToPubKeyScript creates a script public key that is spent by a Schnorr
// signature of the given 32-byte public key:
//
//	<pubkey> OP_CHECKSIG
func PayToPubKeyScript(pubKey []byte) ([]byte, error) {
	return NewScriptBuilder().AddData(pubKey).AddOp(btcscript.OP_CHECKSIG).Script()
}

// HashLockScript creates a script public key that is spent by pushing the
// preimage of the given hash160:
//
//	OP_HASH160 <hash> OP_EQUAL
func HashLockScript(preimage []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(btcscript.OP_HASH160).
		AddData(btcutil.Hash160(preimage)).AddOp(btcscript.OP_EQUAL).Script()
}

// HashLockSignatureScript creates the signature script spending a
// HashLockScript output.
func HashLockSignatureScript(preimage []byte) ([]byte, error) {
	return NewScriptBuilder().AddData(preimage).Script()
}

// LockTimeScript prefixes script with an absolute lock time check:
//
//	<lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP <script>
func LockTimeScript(lockTime int64, script []byte) ([]byte, error) {
	return NewScriptBuilder().AddInt64(lockTime).AddOp(btcscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(btcscript.OP_DROP).AddOps(script).Script()
}

// SequenceLockScript prefixes script with a relative lock time check:
//
//	<sequence> OP_CHECKSEQUENCEVERIFY OP_DROP <script>
func SequenceLockScript(sequence int64, script []byte) ([]byte, error) {
	return NewScriptBuilder().AddInt64(sequence).AddOp(btcscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(btcscript.OP_DROP).AddOps(script).Script()
}

// NullDataScript creates an unspendable script carrying data:
//
//	OP_RETURN <data>
func NullDataScript(data []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(btcscript.OP_RETURN).AddData(data).Script()
}
