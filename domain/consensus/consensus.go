package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockstore"
	"github.com/utxonode/chaind/domain/consensus/datastructures/utxostore"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/domain/consensus/processes/blockvalidator"
	"github.com/utxonode/chaind/domain/consensus/processes/chainconnector"
	"github.com/utxonode/chaind/domain/consensus/processes/scriptvalidator"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
)

// Consensus maintains the current core state of the node: the index of
// every known block, the active chain and the ledger of its unspent coins.
//
// Headers and blocks are processed one at a time. Every read method is safe
// to call concurrently with processing.
type Consensus interface {
	SubmitHeader(headerBytes []byte) (externalapi.SubmitResult, error)
	SubmitBlock(blockBytes []byte) (externalapi.SubmitResult, error)
	ProcessHeader(header *externalapi.DomainBlockHeader) (externalapi.SubmitResult, error)
	ProcessBlock(block *externalapi.DomainBlock) (externalapi.SubmitResult, error)
	InvalidateBlock(blockHash *externalapi.DomainHash) error

	Tip() *blockindex.Entry
	BestHeader() *blockindex.Entry
	EntryByHash(blockHash *externalapi.DomainHash) (*blockindex.Entry, bool)
	EntryAtHeight(height uint64) (*blockindex.Entry, bool)
	GetBlock(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error)
	GetCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error)
	Snapshot(f func(view *utxostore.View) error) error

	Subscribe(callback notifications.Callback, interests ...notifications.NotificationType) notifications.SubscriptionID
	Unsubscribe(id notifications.SubscriptionID)
	WaitForNotifications(ctx context.Context) error

	Collectors() []prometheus.Collector
	Flush() error
	Close() error
}

type consensus struct {
	lock   sync.Mutex
	closed bool

	params *chainparams.Params

	blockIndex  *blockindex.BlockIndex
	activeChain *blockindex.ActiveChain
	blockStore  *blockstore.BlockStore
	utxoStore   *utxostore.UTXOStore
	sigCache    *txscript.SigCache

	blockValidator  *blockvalidator.BlockValidator
	scriptValidator *scriptvalidator.ScriptValidator
	chainConnector  *chainconnector.ChainConnector
	dispatcher      *notifications.Dispatcher
}

func (s *consensus) Tip() *blockindex.Entry {
	return s.activeChain.Tip()
}

func (s *consensus) BestHeader() *blockindex.Entry {
	return s.blockIndex.BestHeader()
}

func (s *consensus) EntryByHash(blockHash *externalapi.DomainHash) (*blockindex.Entry, bool) {
	return s.blockIndex.Lookup(blockHash)
}

// EntryAtHeight returns the entry of the active chain at the given height.
func (s *consensus) EntryAtHeight(height uint64) (*blockindex.Entry, bool) {
	entry := s.activeChain.AtHeight(height)
	return entry, entry != nil
}

func (s *consensus) GetBlock(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	return s.blockStore.Block(blockHash)
}

// GetCoin returns the unspent coin at outpoint as of the active tip.
func (s *consensus) GetCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	return s.utxoStore.GetCoin(outpoint)
}

// Snapshot calls f with a view of the ledger that no tip change can alter
// while f runs.
func (s *consensus) Snapshot(f func(view *utxostore.View) error) error {
	return s.utxoStore.Snapshot(f)
}

func (s *consensus) Subscribe(callback notifications.Callback,
	interests ...notifications.NotificationType) notifications.SubscriptionID {

	return s.dispatcher.Subscribe(callback, interests...)
}

func (s *consensus) Unsubscribe(id notifications.SubscriptionID) {
	s.dispatcher.Unsubscribe(id)
}

// WaitForNotifications blocks until every notification sent so far was
// delivered, or ctx is done.
func (s *consensus) WaitForNotifications(ctx context.Context) error {
	return s.dispatcher.WaitForDrain(ctx)
}

// Collectors returns the prometheus collectors of every component.
func (s *consensus) Collectors() []prometheus.Collector {
	var collectors []prometheus.Collector
	collectors = append(collectors, s.utxoStore.Metrics().Collectors()...)
	collectors = append(collectors, s.scriptValidator.Metrics().Collectors()...)
	collectors = append(collectors, s.chainConnector.Metrics().Collectors()...)
	return collectors
}

// Flush makes the whole state durable: the block index first, so that the
// ledger never refers to a block the index does not have, and then the
// ledger.
func (s *consensus) Flush() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.flush()
}

func (s *consensus) flush() error {
	err := s.storeDirtyIndexEntries()
	if err != nil {
		return err
	}
	return s.utxoStore.Flush()
}

// notificationDrainTimeout bounds how long Close waits for subscribers to
// receive the notifications queued before it.
const notificationDrainTimeout = 10 * time.Second

// Close flushes the state, delivers the queued notifications and stops the
// notification delivery. The database stays open. Closing twice is a no-op.
func (s *consensus) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.flush()
	s.drainNotifications()
	s.dispatcher.Stop()
	closeErr := s.sigCache.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (s *consensus) drainNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), notificationDrainTimeout)
	defer cancel()
	err := s.dispatcher.WaitForDrain(ctx)
	if err != nil {
		log.Warnf("Stopping notification delivery with notifications still queued: %s", err)
	}
}

func (s *consensus) storeDirtyIndexEntries() error {
	dirty := s.blockIndex.DirtyEntries()
	err := s.blockStore.StoreIndexEntries(dirty)
	if err != nil {
		return err
	}
	s.blockIndex.ClearDirty(dirty)
	return nil
}
