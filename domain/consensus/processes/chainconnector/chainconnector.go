package chainconnector

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockstore"
	"github.com/utxonode/chaind/domain/consensus/datastructures/utxostore"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/domain/consensus/processes/blockvalidator"
	"github.com/utxonode/chaind/domain/consensus/processes/chainselector"
	"github.com/utxonode/chaind/domain/consensus/processes/scriptvalidator"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/infrastructure/logger"
)

// Notifier receives the notifications of every tip change.
type Notifier interface {
	Notify(chainNotifications ...*notifications.Notification) error
}

// ChainConnector moves the active chain and the ledger to the best valid
// chain tip. It must only be used by a single goroutine at a time.
type ChainConnector struct {
	blockIndex      *blockindex.BlockIndex
	activeChain     *blockindex.ActiveChain
	blockStore      *blockstore.BlockStore
	utxoStore       *utxostore.UTXOStore
	blockValidator  *blockvalidator.BlockValidator
	scriptValidator *scriptvalidator.ScriptValidator
	chainSelector   *chainselector.ChainSelector
	notifier        Notifier

	metrics *Metrics
}

// New instantiates a new ChainConnector
func New(
	blockIndex *blockindex.BlockIndex,
	activeChain *blockindex.ActiveChain,
	blockStore *blockstore.BlockStore,
	utxoStore *utxostore.UTXOStore,
	blockValidator *blockvalidator.BlockValidator,
	scriptValidator *scriptvalidator.ScriptValidator,
	chainSelector *chainselector.ChainSelector,
	notifier Notifier) *ChainConnector {

	return &ChainConnector{
		blockIndex:      blockIndex,
		activeChain:     activeChain,
		blockStore:      blockStore,
		utxoStore:       utxoStore,
		blockValidator:  blockValidator,
		scriptValidator: scriptValidator,
		chainSelector:   chainSelector,
		notifier:        notifier,
		metrics:         newMetrics(),
	}
}

// Metrics returns the prometheus collectors of c.
func (c *ChainConnector) Metrics() *Metrics {
	return c.metrics
}

// InvalidBlock is a block that failed validation while being connected,
// and was marked as failed.
type InvalidBlock struct {
	Entry *blockindex.Entry
	Err   error
}

// ActivateBestChain reorganizes to the best chain tip, as picked by the
// chain selector, until the active tip is the best one. Blocks that fail
// validation on the way are marked as failed, reported in invalidBlocks,
// and the next best tip is tried, so the active tip never rests on an
// invalid block.
func (c *ChainConnector) ActivateBestChain() (invalidBlocks []*InvalidBlock, err error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "ActivateBestChain")
	defer onEnd()

	for {
		current := c.activeChain.Tip()
		if current == nil {
			return invalidBlocks, errors.New("the active chain has no tip")
		}
		target, changed := c.chainSelector.SelectBestTip(current)
		if !changed {
			return invalidBlocks, nil
		}
		invalidBlock, err := c.reorganizeTo(current, target)
		if err != nil {
			return invalidBlocks, err
		}
		if invalidBlock != nil {
			invalidBlocks = append(invalidBlocks, invalidBlock)
		}
	}
}

type changedBlock struct {
	block *externalapi.DomainBlock
	entry *blockindex.Entry
}

// reorganizeTo moves the chain from current to target. Every ledger change
// stays staged until the whole path is connected, and is discarded on
// failure. A block failing validation is returned as invalidBlock, with a
// nil error.
func (c *ChainConnector) reorganizeTo(current, target *blockindex.Entry) (invalidBlock *InvalidBlock, err error) {
	fork := c.blockIndex.FindFork(current, target)
	log.Debugf("Reorganizing from %s to %s through %s", current, target, fork)

	var disconnected []*changedBlock
	for walk := current; walk != fork; walk = c.blockIndex.Parent(walk) {
		block, err := c.disconnectBlock(walk)
		if err != nil {
			c.utxoStore.Discard()
			return nil, err
		}
		disconnected = append(disconnected, &changedBlock{block: block, entry: walk})
	}

	path := make([]*blockindex.Entry, 0, target.Height()-fork.Height())
	for walk := target; walk != fork; walk = c.blockIndex.Parent(walk) {
		path = append(path, walk)
	}
	connected := make([]*changedBlock, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		entry := path[i]
		block, err := c.connectBlock(entry)
		if err != nil {
			c.utxoStore.Discard()
			if !ruleerrors.IsRuleError(err) {
				return nil, err
			}
			return c.handleInvalidBlock(entry, err)
		}
		connected = append(connected, &changedBlock{block: block, entry: entry})
	}

	err = c.utxoStore.Commit(func() {
		c.activeChain.SetTip(target)
	})
	c.blockIndex.PruneCandidates(target)
	c.updateMetrics(disconnected, connected)
	c.notify(disconnected, connected, target)
	if err != nil {
		return nil, err
	}

	if len(disconnected) > 0 {
		log.Infof("Reorganized from %s to %s: %d blocks disconnected, %d connected",
			current, target, len(disconnected), len(connected))
	} else {
		log.Debugf("Extended the active chain by %d blocks to %s", len(connected), target)
	}
	return nil, nil
}

func (c *ChainConnector) handleInvalidBlock(entry *blockindex.Entry, validationErr error) (*InvalidBlock, error) {
	log.Warnf("Block %s failed validation: %s", entry, validationErr)
	c.metrics.InvalidBlocks.Inc()
	err := c.blockIndex.MarkFailed(entry.Hash())
	if err != nil {
		return nil, err
	}
	return &InvalidBlock{Entry: entry, Err: validationErr}, nil
}

// disconnectBlock stages the undo of the block of entry, which must be the
// staged ledger tip.
func (c *ChainConnector) disconnectBlock(entry *blockindex.Entry) (*externalapi.DomainBlock, error) {
	if entry.Height() == 0 {
		return nil, errors.Wrapf(ruleerrors.ErrInvalidTransition, "cannot disconnect genesis block %s", entry)
	}
	block, err := c.blockStore.Block(entry.Hash())
	if err != nil {
		return nil, err
	}
	undo, err := c.blockStore.Undo(entry.Hash())
	if err != nil {
		return nil, err
	}
	err = c.utxoStore.UndoBlock(undo)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// connectBlock validates the block of entry against the staged ledger, if
// it was not fully validated before, and stages its effect. Its undo record
// is stored right away.
func (c *ChainConnector) connectBlock(entry *blockindex.Entry) (*externalapi.DomainBlock, error) {
	block, err := c.blockStore.Block(entry.Hash())
	if err != nil {
		return nil, err
	}

	if !entry.Status().IsValid(blockindex.StatusScriptsValid) {
		spentCoins, err := c.blockValidator.ValidateBodyInContext(block, entry, c.utxoStore)
		if err != nil {
			return nil, err
		}
		_, err = c.scriptValidator.ValidateScripts(block, entry, spentCoins)
		if err != nil {
			return nil, err
		}
	}

	undo, err := c.utxoStore.ApplyBlock(block, entry.Height())
	if err != nil {
		return nil, err
	}
	err = c.blockStore.StoreUndo(undo)
	if err != nil {
		return nil, err
	}

	for level := entry.Status().Level() + 1; level <= blockindex.StatusScriptsValid; level++ {
		err := c.blockIndex.MarkStatus(entry.Hash(), level)
		if err != nil {
			return nil, err
		}
	}
	return block, nil
}

func (c *ChainConnector) updateMetrics(disconnected, connected []*changedBlock) {
	c.metrics.BlocksDisconnected.Add(float64(len(disconnected)))
	c.metrics.BlocksConnected.Add(float64(len(connected)))
	if len(disconnected) > 0 {
		c.metrics.Reorgs.Inc()
		c.metrics.ReorgDepth.Observe(float64(len(disconnected)))
	}
}

// notify sends the disconnections tip first, then the connections fork
// child first, then the new tip.
func (c *ChainConnector) notify(disconnected, connected []*changedBlock, tip *blockindex.Entry) {
	if c.notifier == nil {
		return
	}
	chainNotifications := make([]*notifications.Notification, 0, len(disconnected)+len(connected)+1)
	for _, changed := range disconnected {
		chainNotifications = append(chainNotifications,
			notifications.NewBlockDisconnected(changed.block, changed.entry))
	}
	for _, changed := range connected {
		chainNotifications = append(chainNotifications,
			notifications.NewBlockConnected(changed.block, changed.entry))
	}
	chainNotifications = append(chainNotifications, notifications.NewChainTipChanged(tip))

	err := c.notifier.Notify(chainNotifications...)
	if err != nil {
		log.Warnf("Failed to send the notifications of tip %s: %s", tip, err)
	}
}
