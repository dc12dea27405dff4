package serialization

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// protocolVersion is passed to the btcd var-int helpers, whose
// encoding does not vary by version.
const protocolVersion = 0

// errNoEncodingForType signifies that there's no encoding for the given type.
var errNoEncodingForType = errors.New("there's no encoding for this type")

var littleEndian = binary.LittleEndian

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	var buf [8]byte
	var err error
	switch e := element.(type) {
	case int32:
		littleEndian.PutUint32(buf[:4], uint32(e))
		_, err = w.Write(buf[:4])
	case uint32:
		littleEndian.PutUint32(buf[:4], e)
		_, err = w.Write(buf[:4])
	case int64:
		littleEndian.PutUint64(buf[:], uint64(e))
		_, err = w.Write(buf[:])
	case uint64:
		littleEndian.PutUint64(buf[:], e)
		_, err = w.Write(buf[:])
	case uint8:
		buf[0] = e
		_, err = w.Write(buf[:1])
	case bool:
		if e {
			buf[0] = 0x01
		}
		_, err = w.Write(buf[:1])
	case externalapi.DomainHash:
		_, err = w.Write(e.ByteSlice())
	case *externalapi.DomainHash:
		_, err = w.Write(e.ByteSlice())
	default:
		return errors.Wrapf(errNoEncodingForType, "couldn't find a way to write type %T", element)
	}
	return errors.WithStack(err)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func ReadElement(r io.Reader, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case *int32:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return errors.WithStack(err)
		}
		*e = int32(littleEndian.Uint32(buf[:4]))
	case *uint32:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return errors.WithStack(err)
		}
		*e = littleEndian.Uint32(buf[:4])
	case *int64:
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = int64(littleEndian.Uint64(buf[:]))
	case *uint64:
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = littleEndian.Uint64(buf[:])
	case *uint8:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return errors.WithStack(err)
		}
		*e = buf[0]
	case *bool:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return errors.WithStack(err)
		}
		*e = buf[0] != 0x00
	case *externalapi.DomainHash:
		var hashBytes [externalapi.DomainHashSize]byte
		if _, err := io.ReadFull(r, hashBytes[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = *externalapi.NewDomainHashFromByteArray(&hashBytes)
	default:
		return errors.Wrapf(errNoEncodingForType, "couldn't find a way to read type %T", element)
	}
	return nil
}

// ReadElements reads multiple items from r. It is equivalent to multiple
// calls to ReadElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, val uint64) error {
	return errors.WithStack(wire.WriteVarInt(w, protocolVersion, val))
}

// ReadVarInt reads a variable length integer from r and returns it as a uint64.
func ReadVarInt(r io.Reader) (uint64, error) {
	val, err := wire.ReadVarInt(r, protocolVersion)
	return val, errors.WithStack(err)
}

// WriteVarBytes serializes a variable length byte array to w as a varInt
// containing the number of bytes, followed by the bytes themselves.
func WriteVarBytes(w io.Writer, bytes []byte) error {
	return errors.WithStack(wire.WriteVarBytes(w, protocolVersion, bytes))
}

// ReadVarBytes reads a variable length byte array. An error is returned if
// the length is greater than the passed maxAllowed parameter.
func ReadVarBytes(r io.Reader, maxAllowed uint32, fieldName string) ([]byte, error) {
	bytes, err := wire.ReadVarBytes(r, protocolVersion, maxAllowed, fieldName)
	return bytes, errors.WithStack(err)
}
