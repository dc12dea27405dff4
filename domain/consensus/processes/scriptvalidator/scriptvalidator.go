// Package scriptvalidator runs the scripts of a block's transactions, the
// most expensive of the block checks, in parallel. It also decides when the
// scripts of a block may be skipped because the block is buried under an
// assumed-valid block with enough chain work.
package scriptvalidator

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/transactionhelper"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
	"github.com/utxonode/chaind/infrastructure/logger"
	"golang.org/x/sync/errgroup"
)

// ScriptValidator verifies transaction scripts.
type ScriptValidator struct {
	params     *chainparams.Params
	blockIndex *blockindex.BlockIndex
	sigCache   *txscript.SigCache
	threads    int
	metrics    *Metrics
}

// New instantiates a new ScriptValidator running scripts on up to threads
// goroutines. A non-positive threads uses one goroutine per CPU. sigCache
// may be nil.
func New(params *chainparams.Params, blockIndex *blockindex.BlockIndex,
	sigCache *txscript.SigCache, threads int) *ScriptValidator {

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &ScriptValidator{
		params:     params,
		blockIndex: blockIndex,
		sigCache:   sigCache,
		threads:    threads,
		metrics:    newMetrics(),
	}
}

// Metrics returns the validator's prometheus collectors.
func (v *ScriptValidator) Metrics() *Metrics {
	return v.metrics
}

// ShouldSkipScripts returns whether the scripts of the block with the given
// entry may be assumed valid. That is the case when the configured
// assumed-valid block is known, entry is that block or one of its
// ancestors, and the assumed-valid block is itself on the best header chain
// whose cumulative work reaches the configured minimum.
func (v *ScriptValidator) ShouldSkipScripts(entry *blockindex.Entry) bool {
	if v.params.AssumeValid == nil {
		return false
	}
	assumeValid, ok := v.blockIndex.Lookup(v.params.AssumeValid)
	if !ok {
		return false
	}
	if !v.blockIndex.IsInChainOf(entry, assumeValid) {
		return false
	}
	bestHeader := v.blockIndex.BestHeader()
	if !v.blockIndex.IsInChainOf(assumeValid, bestHeader) {
		return false
	}
	if v.params.MinimumChainWork != nil && bestHeader.Work().Cmp(v.params.MinimumChainWork) < 0 {
		return false
	}
	return true
}

// scriptFlags returns the script rules enforced at the given height.
func (v *ScriptValidator) scriptFlags(height uint64) txscript.ScriptFlags {
	flags := txscript.ScriptNoFlags
	if height >= v.params.BIP0065Height {
		flags |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if height >= v.params.CSVHeight {
		flags |= txscript.ScriptVerifyCheckSequenceVerify
	}
	return flags
}

// ValidateScripts checks the scripts of every input of block, whose entry
// is given, unless ShouldSkipScripts says otherwise. spentCoins holds the
// coins spent by every transaction, indexed like the block's transactions.
// It returns whether the scripts were skipped.
func (v *ScriptValidator) ValidateScripts(block *externalapi.DomainBlock, entry *blockindex.Entry,
	spentCoins [][]*externalapi.UTXOEntry) (skipped bool, err error) {

	if v.ShouldSkipScripts(entry) {
		log.Debugf("Skipping script validation of block %s under assumed-valid block %s",
			entry, v.params.AssumeValid)
		v.metrics.SkippedBlocks.Inc()
		return true, nil
	}

	onEnd := logger.LogAndMeasureExecutionTime(log, "ValidateScripts")
	defer onEnd()

	flags := v.scriptFlags(entry.Height())
	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(v.threads)
	for i, tx := range block.Transactions {
		if i == transactionhelper.CoinbaseTransactionIndex {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		tx := tx
		coins := spentCoins[i]
		group.Go(func() error {
			return v.validateTransactionScripts(ctx, tx, coins, flags)
		})
	}
	return false, group.Wait()
}

func (v *ScriptValidator) validateTransactionScripts(ctx context.Context, tx *externalapi.DomainTransaction,
	spentCoins []*externalapi.UTXOEntry, flags txscript.ScriptFlags) error {

	if len(spentCoins) != len(tx.Inputs) {
		return errors.Errorf("transaction %s has %d inputs but %d spent coins were given",
			consensushashing.TransactionID(tx), len(tx.Inputs), len(spentCoins))
	}
	for i, coin := range spentCoins {
		// Another transaction of the block already failed.
		if ctx.Err() != nil {
			return nil
		}
		vm, err := txscript.NewEngine(coin.ScriptPublicKey, tx, i, flags, v.sigCache)
		if err == nil {
			err = vm.Execute()
		}
		v.metrics.ScriptChecks.Inc()
		if err != nil {
			return errors.Wrapf(err, "failed to validate input %d of transaction %s, "+
				"which references output %s", i, consensushashing.TransactionID(tx),
				tx.Inputs[i].PreviousOutpoint)
		}
	}
	return nil
}
