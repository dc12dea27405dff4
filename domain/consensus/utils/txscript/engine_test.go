package txscript

import (
	"github.com/pkg/errors"
	"testing"

	btcscript "github.com/btcsuite/btcd/txscript"
	"github.com/kaspanet/go-secp256k1"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
)

func spendingTx(sigScript []byte) *externalapi.DomainTransaction {
	prevTxID := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{7})
	return &externalapi.DomainTransaction{
		Version: 1,
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: *externalapi.NewDomainOutpoint(prevTxID, 0),
			SignatureScript:  sigScript,
			Sequence:         0,
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{
			Value:           1000,
			ScriptPublicKey: []byte{btcscript.OP_TRUE},
		}},
	}
}

func execute(scriptPubKey []byte, tx *externalapi.DomainTransaction, flags ScriptFlags, sigCache *SigCache) error {
	vm, err := NewEngine(scriptPubKey, tx, 0, flags, sigCache)
	if err != nil {
		return err
	}
	return vm.Execute()
}

func mustScript(script []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return script
}

func TestHashLock(t *testing.T) {
	preimage := []byte("the quick brown fox")
	scriptPubKey := mustScript(HashLockScript(preimage))

	tx := spendingTx(mustScript(HashLockSignatureScript(preimage)))
	if err := execute(scriptPubKey, tx, ScriptNoFlags, nil); err != nil {
		t.Fatalf("TestHashLock: correct preimage was rejected: %s", err)
	}

	tx = spendingTx(mustScript(HashLockSignatureScript([]byte("the lazy dog"))))
	err := execute(scriptPubKey, tx, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrEvalFalse) {
		t.Fatalf("TestHashLock: expected ErrEvalFalse, got %v", err)
	}
	if !errors.Is(err, ruleerrors.ErrScriptValidation) {
		t.Fatalf("TestHashLock: script failure is not a ErrScriptValidation rule error")
	}
}

func TestCheckSig(t *testing.T) {
	key, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		t.Fatalf("TestCheckSig: failed generating a key: %s", err)
	}
	pubKey, err := SerializedPublicKey(key)
	if err != nil {
		t.Fatalf("TestCheckSig: failed serializing the public key: %s", err)
	}
	scriptPubKey := mustScript(PayToPubKeyScript(pubKey))

	sigCache, err := NewSigCache(100)
	if err != nil {
		t.Fatalf("TestCheckSig: NewSigCache: %s", err)
	}
	defer sigCache.Close()

	tx := spendingTx(nil)
	tx.Inputs[0].SignatureScript = mustScript(
		SignatureScript(tx, 0, scriptPubKey, consensushashing.SigHashAll, key))
	if err := execute(scriptPubKey, tx, ScriptNoFlags, sigCache); err != nil {
		t.Fatalf("TestCheckSig: valid signature was rejected: %s", err)
	}
	if sigCache.Len() != 1 {
		t.Fatalf("TestCheckSig: expected the verified signature to be cached, cache has %d entries", sigCache.Len())
	}

	// The cached signature verifies again.
	if err := execute(scriptPubKey, tx, ScriptNoFlags, sigCache); err != nil {
		t.Fatalf("TestCheckSig: cached signature was rejected: %s", err)
	}

	// Changing an output invalidates a SigHashAll signature.
	tx.Outputs[0].Value--
	err = execute(scriptPubKey, tx, ScriptNoFlags, sigCache)
	if !IsErrorCode(err, ErrEvalFalse) {
		t.Fatalf("TestCheckSig: expected ErrEvalFalse for a tampered transaction, got %v", err)
	}

	// An empty signature pushes false.
	tx.Inputs[0].SignatureScript = []byte{btcscript.OP_0}
	err = execute(scriptPubKey, tx, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrEvalFalse) {
		t.Fatalf("TestCheckSig: expected ErrEvalFalse for an empty signature, got %v", err)
	}

	// A signature of the wrong size is an error.
	tx.Inputs[0].SignatureScript = mustScript(NewScriptBuilder().AddData(make([]byte, 10)).Script())
	err = execute(scriptPubKey, tx, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrSigLength) {
		t.Fatalf("TestCheckSig: expected ErrSigLength, got %v", err)
	}
}

func TestSignatureScriptMustBePushOnly(t *testing.T) {
	tx := spendingTx([]byte{btcscript.OP_1, btcscript.OP_DUP})
	_, err := NewEngine([]byte{btcscript.OP_EQUAL}, tx, 0, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrNotPushOnly) {
		t.Fatalf("TestSignatureScriptMustBePushOnly: expected ErrNotPushOnly, got %v", err)
	}
	if !errors.Is(err, ruleerrors.ErrScriptMalformed) {
		t.Fatalf("TestSignatureScriptMustBePushOnly: expected a ErrScriptMalformed rule error")
	}

	_, err = NewEngine([]byte{btcscript.OP_TRUE}, tx, 1, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrInvalidIndex) {
		t.Fatalf("TestSignatureScriptMustBePushOnly: expected ErrInvalidIndex, got %v", err)
	}

	// A truncated push does not parse.
	_, err = NewEngine([]byte{btcscript.OP_DATA_2, 0x01}, spendingTx(nil), 0, ScriptNoFlags, nil)
	if !IsErrorCode(err, ErrMalformedScript) {
		t.Fatalf("TestSignatureScriptMustBePushOnly: expected ErrMalformedScript, got %v", err)
	}
}

func TestConditionals(t *testing.T) {
	scriptPubKey := []byte{btcscript.OP_IF, btcscript.OP_1, btcscript.OP_ELSE, btcscript.OP_0, btcscript.OP_ENDIF}

	tests := []struct {
		name      string
		sigScript []byte
		script    []byte
		code      ErrorCode
		valid     bool
	}{
		{name: "true branch", sigScript: []byte{btcscript.OP_1}, script: scriptPubKey, valid: true},
		{name: "false branch", sigScript: []byte{btcscript.OP_0}, script: scriptPubKey, code: ErrEvalFalse},
		{name: "empty stack", sigScript: nil, script: scriptPubKey, code: ErrInvalidStackOperation},
		{name: "unbalanced endif", sigScript: []byte{btcscript.OP_1}, script: []byte{btcscript.OP_ENDIF}, code: ErrUnbalancedConditional},
		{name: "unterminated if", sigScript: []byte{btcscript.OP_1}, script: []byte{btcscript.OP_IF, btcscript.OP_1}, code: ErrUnbalancedConditional},
		{name: "return in skipped branch", sigScript: []byte{btcscript.OP_0},
			script: []byte{btcscript.OP_IF, btcscript.OP_RETURN, btcscript.OP_ENDIF, btcscript.OP_1}, valid: true},
		{name: "return", sigScript: []byte{btcscript.OP_1},
			script: []byte{btcscript.OP_IF, btcscript.OP_RETURN, btcscript.OP_ENDIF, btcscript.OP_1}, code: ErrEarlyReturn},
		{name: "notif", sigScript: []byte{btcscript.OP_0},
			script: []byte{btcscript.OP_NOTIF, btcscript.OP_1, btcscript.OP_ELSE, btcscript.OP_0, btcscript.OP_ENDIF}, valid: true},
		{name: "unsupported opcode", sigScript: []byte{btcscript.OP_1, btcscript.OP_1},
			script: []byte{btcscript.OP_ADD}, code: ErrUnsupportedOpcode},
		{name: "verify", sigScript: []byte{btcscript.OP_0}, script: []byte{btcscript.OP_VERIFY, btcscript.OP_1}, code: ErrVerify},
		{name: "equalverify", sigScript: []byte{btcscript.OP_1, btcscript.OP_2},
			script: []byte{btcscript.OP_EQUALVERIFY, btcscript.OP_1}, code: ErrEqualVerify},
	}

	for _, test := range tests {
		err := execute(test.script, spendingTx(test.sigScript), ScriptNoFlags, nil)
		if test.valid {
			if err != nil {
				t.Errorf("TestConditionals: %s: unexpected error: %s", test.name, err)
			}
			continue
		}
		if !IsErrorCode(err, test.code) {
			t.Errorf("TestConditionals: %s: expected %s, got %v", test.name, test.code, err)
		}
	}
}

func TestCheckLockTimeVerify(t *testing.T) {
	tests := []struct {
		name     string
		lockTime int64
		txLock   uint32
		sequence uint32
		flags    ScriptFlags
		code     ErrorCode
		valid    bool
	}{
		{name: "satisfied", lockTime: 50, txLock: 100, flags: ScriptVerifyCheckLockTimeVerify, valid: true},
		{name: "equal", lockTime: 100, txLock: 100, flags: ScriptVerifyCheckLockTimeVerify, valid: true},
		{name: "unsatisfied", lockTime: 150, txLock: 100, flags: ScriptVerifyCheckLockTimeVerify, code: ErrUnsatisfiedLockTime},
		{name: "type mismatch", lockTime: 600_000_000, txLock: 100, flags: ScriptVerifyCheckLockTimeVerify, code: ErrUnsatisfiedLockTime},
		{name: "final input", lockTime: 50, txLock: 100, sequence: 0xffffffff, flags: ScriptVerifyCheckLockTimeVerify, code: ErrUnsatisfiedLockTime},
		{name: "negative", lockTime: -1, txLock: 100, flags: ScriptVerifyCheckLockTimeVerify, code: ErrNegativeLockTime},
		{name: "not active", lockTime: 150, txLock: 100, flags: ScriptNoFlags, valid: true},
	}

	for _, test := range tests {
		scriptPubKey := mustScript(LockTimeScript(test.lockTime, []byte{btcscript.OP_TRUE}))
		tx := spendingTx(nil)
		tx.LockTime = test.txLock
		tx.Inputs[0].Sequence = test.sequence

		err := execute(scriptPubKey, tx, test.flags, nil)
		if test.valid {
			if err != nil {
				t.Errorf("TestCheckLockTimeVerify: %s: unexpected error: %s", test.name, err)
			}
			continue
		}
		if !IsErrorCode(err, test.code) {
			t.Errorf("TestCheckLockTimeVerify: %s: expected %s, got %v", test.name, test.code, err)
		}
	}
}

func TestCheckSequenceVerify(t *testing.T) {
	tests := []struct {
		name      string
		sequence  int64
		txVersion int32
		txSeq     uint32
		code      ErrorCode
		valid     bool
	}{
		{name: "satisfied", sequence: 5, txVersion: 2, txSeq: 10, valid: true},
		{name: "unsatisfied", sequence: 20, txVersion: 2, txSeq: 10, code: ErrUnsatisfiedLockTime},
		{name: "version 1", sequence: 5, txVersion: 1, txSeq: 10, code: ErrUnsatisfiedLockTime},
		{name: "operand disabled", sequence: 1 << 31, txVersion: 1, txSeq: 0, valid: true},
		{name: "input disabled", sequence: 5, txVersion: 2, txSeq: 1 << 31, code: ErrUnsatisfiedLockTime},
	}

	for _, test := range tests {
		scriptPubKey := mustScript(SequenceLockScript(test.sequence, []byte{btcscript.OP_TRUE}))
		tx := spendingTx(nil)
		tx.Version = test.txVersion
		tx.Inputs[0].Sequence = test.txSeq

		err := execute(scriptPubKey, tx, ScriptVerifyCheckSequenceVerify, nil)
		if test.valid {
			if err != nil {
				t.Errorf("TestCheckSequenceVerify: %s: unexpected error: %s", test.name, err)
			}
			continue
		}
		if !IsErrorCode(err, test.code) {
			t.Errorf("TestCheckSequenceVerify: %s: expected %s, got %v", test.name, test.code, err)
		}
	}
}

func TestScriptNum(t *testing.T) {
	tests := []struct {
		num        scriptNum
		serialized []byte
	}{
		{0, nil},
		{1, []byte{0x01}},
		{-1, []byte{0x81}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{-128, []byte{0x80, 0x80}},
		{255, []byte{0xff, 0x00}},
		{256, []byte{0x00, 0x01}},
		{500, []byte{0xf4, 0x01}},
		{2147483647, []byte{0xff, 0xff, 0xff, 0x7f}},
		{-2147483647, []byte{0xff, 0xff, 0xff, 0xff}},
	}

	for _, test := range tests {
		serialized := test.num.Bytes()
		if string(serialized) != string(test.serialized) {
			t.Errorf("TestScriptNum: Bytes(%d) = %x, expected %x", test.num, serialized, test.serialized)
			continue
		}
		num, err := makeScriptNum(serialized, true, defaultScriptNumLen)
		if err != nil {
			t.Errorf("TestScriptNum: makeScriptNum(%x): %s", serialized, err)
			continue
		}
		if num != test.num {
			t.Errorf("TestScriptNum: makeScriptNum(%x) = %d, expected %d", serialized, num, test.num)
		}
	}

	if _, err := makeScriptNum([]byte{0x01, 0x00}, true, defaultScriptNumLen); !IsErrorCode(err, ErrMinimalData) {
		t.Errorf("TestScriptNum: expected ErrMinimalData, got %v", err)
	}
	if _, err := makeScriptNum([]byte{1, 2, 3, 4, 5}, false, defaultScriptNumLen); !IsErrorCode(err, ErrNumberTooBig) {
		t.Errorf("TestScriptNum: expected ErrNumberTooBig, got %v", err)
	}
}

func TestScriptHelpers(t *testing.T) {
	nullData := mustScript(NullDataScript([]byte("memo")))
	if !IsUnspendable(nullData) {
		t.Fatalf("TestScriptHelpers: OP_RETURN script is spendable")
	}
	if IsUnspendable(mustScript(HashLockScript([]byte{1}))) {
		t.Fatalf("TestScriptHelpers: hash lock script is unspendable")
	}

	coinbaseScript := mustScript(NewScriptBuilder().AddInt64(500).AddData([]byte("extra nonce")).Script())
	height, err := FirstPushedNumber(coinbaseScript)
	if err != nil {
		t.Fatalf("TestScriptHelpers: FirstPushedNumber: %s", err)
	}
	if height != 500 {
		t.Fatalf("TestScriptHelpers: expected height 500, got %d", height)
	}
	height, err = FirstPushedNumber([]byte{btcscript.OP_3, btcscript.OP_RETURN})
	if err != nil || height != 3 {
		t.Fatalf("TestScriptHelpers: expected height 3, got %d (%v)", height, err)
	}

	pushes, err := PushedData([]byte{btcscript.OP_0, btcscript.OP_5, btcscript.OP_DATA_1, 0xaa})
	if err != nil {
		t.Fatalf("TestScriptHelpers: PushedData: %s", err)
	}
	if len(pushes) != 3 || len(pushes[0]) != 0 || pushes[1][0] != 5 || pushes[2][0] != 0xaa {
		t.Fatalf("TestScriptHelpers: unexpected pushes %x", pushes)
	}
}
