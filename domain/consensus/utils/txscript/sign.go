// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
)

// RawTxInSignature returns the serialized Schnorr signature for the input idx of
// the given transaction, with hashType appended to it. prevScriptPublicKey
// is the script public key of the coin the input spends.
func RawTxInSignature(tx *externalapi.DomainTransaction, idx int, prevScriptPublicKey []byte,
	hashType consensushashing.SigHashType, key *secp256k1.SchnorrKeyPair) ([]byte, error) {

	hash, err := consensushashing.CalculateSignatureHash(prevScriptPublicKey, hashType, tx, idx)
	if err != nil {
		return nil, err
	}
	secpHash := secp256k1.Hash(*hash.ByteArray())
	signature, err := key.SchnorrSign(&secpHash)
	if err != nil {
		return nil, errors.Errorf("cannot sign tx input: %s", err)
	}

	return append(signature.Serialize()[:], byte(hashType)), nil
}

// SignatureScript creates an input signature script for tx that spends a
// coin locked by PayToPubKeyScript to the owner of key.
func SignatureScript(tx *externalapi.DomainTransaction, idx int, prevScriptPublicKey []byte,
	hashType consensushashing.SigHashType, key *secp256k1.SchnorrKeyPair) ([]byte, error) {

	sig, err := RawTxInSignature(tx, idx, prevScriptPublicKey, hashType, key)
	if err != nil {
		return nil, err
	}
	return NewScriptBuilder().AddData(sig).Script()
}

// SerializedPublicKey returns the 32-byte x-only public key of key, as
// expected by OP_CHECKSIG.
func SerializedPublicKey(key *secp256k1.SchnorrKeyPair) ([]byte, error) {
	pk, err := key.SchnorrPublicKey()
	if err != nil {
		return nil, err
	}
	pkData, err := pk.Serialize()
	if err != nil {
		return nil, err
	}
	return pkData[:], nil
}
