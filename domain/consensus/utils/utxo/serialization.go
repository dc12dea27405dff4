// Package utxo holds the byte encodings of ledger coins and undo records.
package utxo

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
)

// OutpointSize is the length of a serialized outpoint: the transaction id
// followed by the little-endian output index.
const OutpointSize = externalapi.DomainHashSize + 4

const maxScriptPublicKeySize = 1 << 20

// maxUndoElements bounds the element counts of a decoded undo record.
const maxUndoElements = 1 << 24

// SerializeOutpoint returns the fixed-size encoding of outpoint, used as the
// coin's key.
func SerializeOutpoint(outpoint *externalapi.DomainOutpoint) []byte {
	w := bytes.NewBuffer(make([]byte, 0, OutpointSize))
	mustWrite(serializeOutpoint(w, outpoint))
	return w.Bytes()
}

// DeserializeOutpoint decodes the output of SerializeOutpoint.
func DeserializeOutpoint(outpointBytes []byte) (*externalapi.DomainOutpoint, error) {
	if len(outpointBytes) != OutpointSize {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput,
			"outpoint is %d bytes, expected %d", len(outpointBytes), OutpointSize)
	}
	return deserializeOutpoint(bytes.NewReader(outpointBytes))
}

// SerializeUTXOEntry returns the encoding of a coin, without its outpoint.
func SerializeUTXOEntry(entry *externalapi.UTXOEntry) []byte {
	w := &bytes.Buffer{}
	mustWrite(serializeUTXOEntry(w, entry))
	return w.Bytes()
}

// DeserializeUTXOEntry decodes the output of SerializeUTXOEntry.
func DeserializeUTXOEntry(entryBytes []byte) (*externalapi.UTXOEntry, error) {
	r := bytes.NewReader(entryBytes)
	entry, err := deserializeUTXOEntry(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput, "%d trailing bytes after coin", r.Len())
	}
	return entry, nil
}

// SerializeUTXO returns the encoding of an outpoint and its coin together.
// It is the element committed to by the ledger multiset.
func SerializeUTXO(outpoint *externalapi.DomainOutpoint, entry *externalapi.UTXOEntry) []byte {
	w := &bytes.Buffer{}
	mustWrite(serializeOutpoint(w, outpoint))
	mustWrite(serializeUTXOEntry(w, entry))
	return w.Bytes()
}

// SerializeUndoRecord returns the encoding of an undo record.
func SerializeUndoRecord(undo *model.UndoRecord) []byte {
	w := &bytes.Buffer{}
	mustWrite(serialization.WriteElements(w, &undo.BlockHash, &undo.ParentHash))
	mustWrite(serialization.WriteVarInt(w, uint64(len(undo.SpentCoins))))
	for _, spent := range undo.SpentCoins {
		mustWrite(serializeOutpoint(w, spent.Outpoint))
		mustWrite(serializeUTXOEntry(w, spent.UTXOEntry))
	}
	mustWrite(serialization.WriteVarInt(w, uint64(len(undo.CreatedOutpoints))))
	for _, outpoint := range undo.CreatedOutpoints {
		mustWrite(serializeOutpoint(w, outpoint))
	}
	return w.Bytes()
}

// DeserializeUndoRecord decodes the output of SerializeUndoRecord.
func DeserializeUndoRecord(undoBytes []byte) (*model.UndoRecord, error) {
	r := bytes.NewReader(undoBytes)
	undo := &model.UndoRecord{}
	err := serialization.ReadElements(r, &undo.BlockHash, &undo.ParentHash)
	if err != nil {
		return nil, malformed(err)
	}

	spentCount, err := readCount(r)
	if err != nil {
		return nil, err
	}
	undo.SpentCoins = make([]*externalapi.OutpointAndUTXOEntryPair, spentCount)
	for i := range undo.SpentCoins {
		outpoint, err := deserializeOutpoint(r)
		if err != nil {
			return nil, err
		}
		entry, err := deserializeUTXOEntry(r)
		if err != nil {
			return nil, err
		}
		undo.SpentCoins[i] = &externalapi.OutpointAndUTXOEntryPair{Outpoint: outpoint, UTXOEntry: entry}
	}

	createdCount, err := readCount(r)
	if err != nil {
		return nil, err
	}
	undo.CreatedOutpoints = make([]*externalapi.DomainOutpoint, createdCount)
	for i := range undo.CreatedOutpoints {
		undo.CreatedOutpoints[i], err = deserializeOutpoint(r)
		if err != nil {
			return nil, err
		}
	}

	if r.Len() != 0 {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput, "%d trailing bytes after undo record", r.Len())
	}
	return undo, nil
}

func serializeOutpoint(w io.Writer, outpoint *externalapi.DomainOutpoint) error {
	return serialization.WriteElements(w, &outpoint.TransactionID, outpoint.Index)
}

func deserializeOutpoint(r io.Reader) (*externalapi.DomainOutpoint, error) {
	outpoint := &externalapi.DomainOutpoint{}
	err := serialization.ReadElements(r, &outpoint.TransactionID, &outpoint.Index)
	if err != nil {
		return nil, malformed(err)
	}
	return outpoint, nil
}

func serializeUTXOEntry(w io.Writer, entry *externalapi.UTXOEntry) error {
	err := serialization.WriteElements(w, entry.Amount, entry.BlockHeight, entry.IsCoinbase)
	if err != nil {
		return err
	}
	return serialization.WriteVarBytes(w, entry.ScriptPublicKey)
}

func deserializeUTXOEntry(r io.Reader) (*externalapi.UTXOEntry, error) {
	entry := &externalapi.UTXOEntry{}
	err := serialization.ReadElements(r, &entry.Amount, &entry.BlockHeight, &entry.IsCoinbase)
	if err != nil {
		return nil, malformed(err)
	}
	entry.ScriptPublicKey, err = serialization.ReadVarBytes(r, maxScriptPublicKeySize, "ScriptPublicKey")
	if err != nil {
		return nil, malformed(err)
	}
	return entry, nil
}

func readCount(r io.Reader) (uint64, error) {
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return 0, malformed(err)
	}
	if count > maxUndoElements {
		return 0, errors.Wrapf(ruleerrors.ErrMalformedInput, "undo record count %d is too big", count)
	}
	return count, nil
}

func malformed(err error) error {
	return errors.Wrap(ruleerrors.ErrMalformedInput, err.Error())
}

func mustWrite(err error) {
	if err != nil {
		panic(errors.Wrap(err, "writing to a bytes.Buffer should never fail"))
	}
}
