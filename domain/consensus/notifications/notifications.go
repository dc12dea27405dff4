package notifications

import (
	"fmt"

	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// Constants for the type of a notification message.
const (
	// NTBlockConnected indicates the associated block was connected to the
	// active chain.
	NTBlockConnected NotificationType = iota

	// NTBlockDisconnected indicates the associated block was disconnected
	// from the active chain.
	NTBlockDisconnected

	// NTChainTipChanged indicates the active chain has a new tip.
	NTChainTipChanged
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockConnected:    "NTBlockConnected",
	NTBlockDisconnected: "NTBlockDisconnected",
	NTChainTipChanged:   "NTChainTipChanged",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to Subscribe.
// The Data field contains a different type depending on the Type:
//  - NTBlockConnected:    *BlockConnectedData
//  - NTBlockDisconnected: *BlockDisconnectedData
//  - NTChainTipChanged:   *ChainTipChangedData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// BlockConnectedData is the Data of a NTBlockConnected notification.
type BlockConnectedData struct {
	Block *externalapi.DomainBlock
	Entry *blockindex.Entry
}

// BlockDisconnectedData is the Data of a NTBlockDisconnected notification.
type BlockDisconnectedData struct {
	Block *externalapi.DomainBlock
	Entry *blockindex.Entry
}

// ChainTipChangedData is the Data of a NTChainTipChanged notification.
type ChainTipChangedData struct {
	Tip *blockindex.Entry
}

// NewBlockConnected returns a NTBlockConnected notification.
func NewBlockConnected(block *externalapi.DomainBlock, entry *blockindex.Entry) *Notification {
	return &Notification{Type: NTBlockConnected, Data: &BlockConnectedData{Block: block, Entry: entry}}
}

// NewBlockDisconnected returns a NTBlockDisconnected notification.
func NewBlockDisconnected(block *externalapi.DomainBlock, entry *blockindex.Entry) *Notification {
	return &Notification{Type: NTBlockDisconnected, Data: &BlockDisconnectedData{Block: block, Entry: entry}}
}

// NewChainTipChanged returns a NTChainTipChanged notification.
func NewChainTipChanged(tip *blockindex.Entry) *Notification {
	return &Notification{Type: NTChainTipChanged, Data: &ChainTipChangedData{Tip: tip}}
}

// Callback is used for a caller to provide a callback for notifications
// about various chain events.
type Callback func(*Notification)
