package externalapi

// SubmitResult is the result code returned to the transport layer
// for a submitted header or block.
type SubmitResult uint8

const (
	// ResultAccepted means the header or block was stored and processed
	ResultAccepted SubmitResult = iota

	// ResultDuplicateOrKnown means the header or block was already known
	ResultDuplicateOrKnown

	// ResultOrphanMissingParent means the parent of the header is unknown
	ResultOrphanMissingParent

	// ResultInvalid means the input was malformed or violates consensus
	ResultInvalid
)

var submitResultStrings = map[SubmitResult]string{
	ResultAccepted:            "Accepted",
	ResultDuplicateOrKnown:    "DuplicateOrKnown",
	ResultOrphanMissingParent: "OrphanMissingParent",
	ResultInvalid:             "Invalid",
}

func (r SubmitResult) String() string {
	if s, ok := submitResultStrings[r]; ok {
		return s
	}
	return "Unknown"
}
