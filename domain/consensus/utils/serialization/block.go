package serialization

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
)

// HeaderSize is the number of bytes in a serialized block header:
// version 4 bytes + parent hash 32 bytes + merkle root 32 bytes +
// timestamp 8 bytes + bits 4 bytes + nonce 8 bytes.
const HeaderSize = 4 + externalapi.DomainHashSize*2 + 8 + 4 + 8

const (
	// minTxInPayload is the minimum payload size for a transaction input:
	// previous outpoint 36 bytes + varint script length 1 byte +
	// sequence 4 bytes.
	minTxInPayload = 36 + 1 + 4

	// minTxOutPayload is the minimum payload size for a transaction output:
	// value 8 bytes + varint script length 1 byte.
	minTxOutPayload = 8 + 1

	// minTxPayload is the minimum payload size for a transaction that has
	// one input and one output.
	minTxPayload = 4 + 1 + minTxInPayload + 1 + minTxOutPayload + 4

	maxTxInPerBlock  = constants.MaxBlockSize / minTxInPayload
	maxTxOutPerBlock = constants.MaxBlockSize / minTxOutPayload
	maxTxPerBlock    = constants.MaxBlockSize / minTxPayload
)

// SerializeHeader writes the wire encoding of header to w.
func SerializeHeader(w io.Writer, header *externalapi.DomainBlockHeader) error {
	return WriteElements(w, header.Version, &header.ParentHash, &header.MerkleRoot,
		header.TimeInSeconds, header.Bits, header.Nonce)
}

// DeserializeHeader reads a header in wire encoding from r.
func DeserializeHeader(r io.Reader) (*externalapi.DomainBlockHeader, error) {
	header := &externalapi.DomainBlockHeader{}
	err := ReadElements(r, &header.Version, &header.ParentHash, &header.MerkleRoot,
		&header.TimeInSeconds, &header.Bits, &header.Nonce)
	if err != nil {
		return nil, err
	}
	return header, nil
}

// SerializeTransaction writes the wire encoding of tx to w.
func SerializeTransaction(w io.Writer, tx *externalapi.DomainTransaction) error {
	err := WriteElement(w, tx.Version)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, uint64(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		err = WriteElements(w, &input.PreviousOutpoint.TransactionID, input.PreviousOutpoint.Index)
		if err != nil {
			return err
		}
		err = WriteVarBytes(w, input.SignatureScript)
		if err != nil {
			return err
		}
		err = WriteElement(w, input.Sequence)
		if err != nil {
			return err
		}
	}

	err = WriteVarInt(w, uint64(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		err = WriteElement(w, output.Value)
		if err != nil {
			return err
		}
		err = WriteVarBytes(w, output.ScriptPublicKey)
		if err != nil {
			return err
		}
	}

	return WriteElement(w, tx.LockTime)
}

// DeserializeTransaction reads a transaction in wire encoding from r.
func DeserializeTransaction(r io.Reader) (*externalapi.DomainTransaction, error) {
	tx := &externalapi.DomainTransaction{}
	err := ReadElement(r, &tx.Version)
	if err != nil {
		return nil, err
	}

	inputCount, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if inputCount > maxTxInPerBlock {
		return nil, errors.Errorf("too many inputs to fit into max block size "+
			"[count %d, max %d]", inputCount, maxTxInPerBlock)
	}
	tx.Inputs = make([]*externalapi.DomainTransactionInput, inputCount)
	for i := range tx.Inputs {
		input := &externalapi.DomainTransactionInput{}
		err = ReadElements(r, &input.PreviousOutpoint.TransactionID, &input.PreviousOutpoint.Index)
		if err != nil {
			return nil, err
		}
		input.SignatureScript, err = ReadVarBytes(r, constants.MaxBlockSize, "signature script")
		if err != nil {
			return nil, err
		}
		err = ReadElement(r, &input.Sequence)
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = input
	}

	outputCount, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if outputCount > maxTxOutPerBlock {
		return nil, errors.Errorf("too many outputs to fit into max block size "+
			"[count %d, max %d]", outputCount, maxTxOutPerBlock)
	}
	tx.Outputs = make([]*externalapi.DomainTransactionOutput, outputCount)
	for i := range tx.Outputs {
		output := &externalapi.DomainTransactionOutput{}
		err = ReadElement(r, &output.Value)
		if err != nil {
			return nil, err
		}
		output.ScriptPublicKey, err = ReadVarBytes(r, constants.MaxBlockSize, "script public key")
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = output
	}

	err = ReadElement(r, &tx.LockTime)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// SerializeBlock writes the wire encoding of block to w.
func SerializeBlock(w io.Writer, block *externalapi.DomainBlock) error {
	err := SerializeHeader(w, block.Header)
	if err != nil {
		return err
	}
	err = WriteVarInt(w, uint64(len(block.Transactions)))
	if err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		err = SerializeTransaction(w, tx)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeserializeBlock reads a block in wire encoding from r.
func DeserializeBlock(r io.Reader) (*externalapi.DomainBlock, error) {
	header, err := DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	txCount, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if txCount > maxTxPerBlock {
		return nil, errors.Errorf("too many transactions to fit into a block "+
			"[count %d, max %d]", txCount, maxTxPerBlock)
	}
	transactions := make([]*externalapi.DomainTransaction, txCount)
	for i := range transactions {
		transactions[i], err = DeserializeTransaction(r)
		if err != nil {
			return nil, err
		}
	}
	return &externalapi.DomainBlock{Header: header, Transactions: transactions}, nil
}

// HeaderToBytes returns the wire encoding of header.
func HeaderToBytes(header *externalapi.DomainBlockHeader) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	err := SerializeHeader(buf, header)
	if err != nil {
		panic(errors.Wrap(err, "writing to a bytes.Buffer should never fail"))
	}
	return buf.Bytes()
}

// BlockToBytes returns the wire encoding of block.
func BlockToBytes(block *externalapi.DomainBlock) []byte {
	buf := &bytes.Buffer{}
	err := SerializeBlock(buf, block)
	if err != nil {
		panic(errors.Wrap(err, "writing to a bytes.Buffer should never fail"))
	}
	return buf.Bytes()
}

// TransactionToBytes returns the wire encoding of tx.
func TransactionToBytes(tx *externalapi.DomainTransaction) []byte {
	buf := &bytes.Buffer{}
	err := SerializeTransaction(buf, tx)
	if err != nil {
		panic(errors.Wrap(err, "writing to a bytes.Buffer should never fail"))
	}
	return buf.Bytes()
}

// HeaderFromBytes decodes a header, failing with ErrMalformedInput on
// short, trailing or otherwise undecodable input.
func HeaderFromBytes(headerBytes []byte) (*externalapi.DomainBlockHeader, error) {
	if len(headerBytes) != HeaderSize {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput,
			"header is %d bytes, expected %d", len(headerBytes), HeaderSize)
	}
	header, err := DeserializeHeader(bytes.NewReader(headerBytes))
	if err != nil {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput, "failed decoding header: %s", err)
	}
	return header, nil
}

// BlockFromBytes decodes a block, failing with ErrMalformedInput on
// short, trailing or otherwise undecodable input.
func BlockFromBytes(blockBytes []byte) (*externalapi.DomainBlock, error) {
	r := bytes.NewReader(blockBytes)
	block, err := DeserializeBlock(r)
	if err != nil {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput, "failed decoding block: %s", err)
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ruleerrors.ErrMalformedInput,
			"block has %d trailing bytes", r.Len())
	}
	return block, nil
}
