package externalapi

import (
	"fmt"
	"math"
)

// DomainTransaction represents a transaction
type DomainTransaction struct {
	Version  int32
	Inputs   []*DomainTransactionInput
	Outputs  []*DomainTransactionOutput
	LockTime uint32
}

// Clone returns a clone of DomainTransaction
func (tx *DomainTransaction) Clone() *DomainTransaction {
	inputsClone := make([]*DomainTransactionInput, len(tx.Inputs))
	for i, input := range tx.Inputs {
		inputsClone[i] = input.Clone()
	}

	outputsClone := make([]*DomainTransactionOutput, len(tx.Outputs))
	for i, output := range tx.Outputs {
		outputsClone[i] = output.Clone()
	}

	return &DomainTransaction{
		Version:  tx.Version,
		Inputs:   inputsClone,
		Outputs:  outputsClone,
		LockTime: tx.LockTime,
	}
}

// DomainTransactionInput represents a transaction input
type DomainTransactionInput struct {
	PreviousOutpoint DomainOutpoint
	SignatureScript  []byte
	Sequence         uint32
}

// Clone returns a clone of DomainTransactionInput
func (input *DomainTransactionInput) Clone() *DomainTransactionInput {
	signatureScriptClone := make([]byte, len(input.SignatureScript))
	copy(signatureScriptClone, input.SignatureScript)

	return &DomainTransactionInput{
		PreviousOutpoint: input.PreviousOutpoint,
		SignatureScript:  signatureScriptClone,
		Sequence:         input.Sequence,
	}
}

// DomainOutpoint represents a transaction outpoint.
// It is comparable and may be used as a map key.
type DomainOutpoint struct {
	TransactionID DomainHash
	Index         uint32
}

// NewDomainOutpoint instantiates a new DomainOutpoint with the given id and index
func NewDomainOutpoint(transactionID *DomainHash, index uint32) *DomainOutpoint {
	return &DomainOutpoint{
		TransactionID: *transactionID,
		Index:         index,
	}
}

// String stringifies an outpoint.
func (op DomainOutpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TransactionID, op.Index)
}

// IsNull returns whether the outpoint is the null outpoint referenced
// by coinbase inputs.
func (op *DomainOutpoint) IsNull() bool {
	return op.Index == math.MaxUint32 && op.TransactionID.IsZero()
}

// NullOutpoint is the previous outpoint of a coinbase input
var NullOutpoint = DomainOutpoint{Index: math.MaxUint32}

// DomainTransactionOutput represents a transaction output
type DomainTransactionOutput struct {
	Value           uint64
	ScriptPublicKey []byte
}

// Clone returns a clone of DomainTransactionOutput
func (output *DomainTransactionOutput) Clone() *DomainTransactionOutput {
	scriptPublicKeyClone := make([]byte, len(output.ScriptPublicKey))
	copy(scriptPublicKeyClone, output.ScriptPublicKey)

	return &DomainTransactionOutput{
		Value:           output.Value,
		ScriptPublicKey: scriptPublicKeyClone,
	}
}
