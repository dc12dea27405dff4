package consensus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/datastructures/utxostore"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
	"github.com/utxonode/chaind/domain/consensus/utils/testutils"
	"github.com/utxonode/chaind/domain/consensus/utils/txscript"
	"golang.org/x/sync/errgroup"
)

// buildSpendingChain builds three blocks on top of parent: the second
// splits the coinbase of the first, and the third spends one of the halves.
func buildSpendingChain(tc *testContext, parent *externalapi.DomainHash) []*externalapi.DomainBlock {
	b1 := tc.builder.BuildBlock(parent, 0)
	subsidy := tc.params.CalcBlockSubsidy(tc.builder.Height(consensushashing.BlockHash(b1)))
	split := testutils.SpendTransaction(testutils.CoinbaseOutpoint(b1), subsidy/2, subsidy-subsidy/2)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 0, split)
	spend := testutils.SpendTransaction(externalapi.NewDomainOutpoint(consensushashing.TransactionID(split), 1),
		subsidy-subsidy/2)
	b3 := tc.builder.BuildBlock(consensushashing.BlockHash(b2), 0, spend)
	return []*externalapi.DomainBlock{b1, b2, b3}
}

func TestConnectAndInvalidateRestoresLedger(t *testing.T) {
	tc := newTestContext(t, testParams())
	initialCommitment := tc.consensus.utxoStore.Commitment()

	chain := buildSpendingChain(tc, tc.builder.Genesis())
	tc.processBlocks(chain...)
	tc.requireTip(chain[2])

	coins, tip := ledgerCoins(t, tc.consensus)
	require.Equal(t, *consensushashing.BlockHash(chain[2]), *tip)
	require.Equal(t, expectedCoins(chain), coins)

	_, found, err := tc.consensus.GetCoin(testutils.CoinbaseOutpoint(chain[0]))
	require.NoError(t, err)
	require.False(t, found, "the spent coinbase is still in the ledger")

	stored, err := tc.consensus.GetBlock(consensushashing.BlockHash(chain[1]))
	require.NoError(t, err)
	require.Equal(t, consensushashing.BlockHash(chain[1]), consensushashing.BlockHash(stored))

	err = tc.consensus.InvalidateBlock(consensushashing.BlockHash(chain[0]))
	require.NoError(t, err)
	require.Equal(t, *tc.params.GenesisHash, *tc.consensus.Tip().Hash())

	coins, tip = ledgerCoins(t, tc.consensus)
	require.Equal(t, *tc.params.GenesisHash, *tip)
	require.Empty(t, coins)
	require.Equal(t, *initialCommitment, *tc.consensus.utxoStore.Commitment())

	for _, block := range chain {
		entry, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(block))
		require.True(t, ok)
		require.True(t, entry.Status().IsFailed(), "block %s is not failed", entry)
	}
}

func TestCommitmentIsIndependentOfPath(t *testing.T) {
	// The same chain is reached directly, and through a reorg from a
	// competing branch.
	reorged := newTestContext(t, testParams())
	competing := reorged.builder.BuildChain(reorged.builder.Genesis(), 2)
	chain := buildSpendingChain(reorged, reorged.builder.Genesis())
	reorged.processBlocks(competing...)
	reorged.processBlocks(chain...)

	direct := newTestContext(t, testParams())
	direct.processBlocks(chain...)
	reorged.requireTip(chain[2])

	require.Equal(t, *direct.consensus.utxoStore.Commitment(), *reorged.consensus.utxoStore.Commitment())
	directCoins, _ := ledgerCoins(t, direct.consensus)
	reorgedCoins, _ := ledgerCoins(t, reorged.consensus)
	require.Equal(t, directCoins, reorgedCoins)
}

func TestReorgNotificationOrder(t *testing.T) {
	tc := newTestContext(t, testParams())
	recorder := newEventRecorder()

	a1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	a2 := tc.builder.BuildBlock(consensushashing.BlockHash(a1), 0)
	a3 := tc.builder.BuildBlock(consensushashing.BlockHash(a2), 0)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(a1), 0)
	b3 := tc.builder.BuildBlock(consensushashing.BlockHash(b2), 0)
	b4 := tc.builder.BuildBlock(consensushashing.BlockHash(b3), 0)
	for name, block := range map[string]*externalapi.DomainBlock{
		"a1": a1, "a2": a2, "a3": a3, "b2": b2, "b3": b3, "b4": b4} {
		recorder.name(block, name)
	}

	tc.processBlocks(a1, a2, a3)
	tc.consensus.Subscribe(recorder.callback)

	// Neither b2 nor b3 has more work than a3.
	tc.processBlocks(b2, b3)
	tc.requireTip(a3)
	tc.waitForNotifications()
	require.Empty(t, recorder.takeEvents())

	tc.processBlocks(b4)
	tc.requireTip(b4)
	tc.waitForNotifications()
	require.Equal(t, []string{
		"disconnect a3",
		"disconnect a2",
		"connect b2",
		"connect b3",
		"connect b4",
		"tip b4",
	}, recorder.takeEvents())

	metrics := tc.consensus.chainConnector.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Reorgs))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.BlocksDisconnected))
	require.Equal(t, 6.0, testutil.ToFloat64(metrics.BlocksConnected))
}

func TestMinimumChainWork(t *testing.T) {
	params := testParams()
	blockWork := pow.CalculateWork(params.GenesisBlock.Header.Bits)
	// The work of the chain up to height 6, genesis included.
	params.MinimumChainWork = new(big.Int).Mul(blockWork, big.NewInt(7))
	tc := newTestContext(t, params)

	b1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	subsidy := params.CalcBlockSubsidy(1)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 0,
		testutils.SpendTransaction(testutils.CoinbaseOutpoint(b1), subsidy))
	chain := append([]*externalapi.DomainBlock{b1, b2},
		tc.builder.BuildChain(consensushashing.BlockHash(b2), 4)...)
	scriptChecks := tc.consensus.scriptValidator.Metrics().ScriptChecks

	for _, block := range chain[:2] {
		result, err := tc.consensus.ProcessBlock(block)
		require.True(t, errors.Is(err, ruleerrors.ErrBelowMinimumChainWork), "unexpected error: %+v", err)
		require.Equal(t, externalapi.ResultInvalid, result)

		blockHash := consensushashing.BlockHash(block)
		hasBlock, err := tc.consensus.blockStore.HasBlock(blockHash)
		require.NoError(t, err)
		require.False(t, hasBlock, "a block below the minimum work was stored")
		entry, ok := tc.consensus.EntryByHash(blockHash)
		require.True(t, ok, "the header of a block below the minimum work was not indexed")
		require.False(t, entry.Status().IsFailed())
	}
	require.Equal(t, 0.0, testutil.ToFloat64(scriptChecks))
	require.Equal(t, *params.GenesisHash, *tc.consensus.Tip().Hash())

	for i, block := range chain {
		result, err := tc.consensus.ProcessHeader(block.Header)
		require.NoError(t, err)
		if i < 2 {
			require.Equal(t, externalapi.ResultDuplicateOrKnown, result)
		} else {
			require.Equal(t, externalapi.ResultAccepted, result)
		}
	}
	require.Equal(t, *consensushashing.BlockHash(chain[5]), *tc.consensus.BestHeader().Hash())

	tc.processBlocks(chain...)
	tc.requireTip(chain[5])
	require.Equal(t, 1.0, testutil.ToFloat64(scriptChecks))
}

// buildHashLockChain builds four blocks on top of genesis: the second pays
// to a hash lock, and the third spends it with preimage.
func buildHashLockChain(t *testing.T, builder *testutils.ChainBuilder, subsidy uint64,
	preimage []byte) []*externalapi.DomainBlock {

	lockScript, err := txscript.HashLockScript([]byte("the right preimage"))
	require.NoError(t, err)
	signatureScript, err := txscript.HashLockSignatureScript(preimage)
	require.NoError(t, err)

	b1 := builder.BuildBlock(builder.Genesis(), 0)
	lock := testutils.SpendTransaction(testutils.CoinbaseOutpoint(b1), subsidy)
	lock.Outputs[0].ScriptPublicKey = lockScript
	b2 := builder.BuildBlock(consensushashing.BlockHash(b1), 0, lock)
	unlock := testutils.SpendTransaction(externalapi.NewDomainOutpoint(consensushashing.TransactionID(lock), 0), subsidy)
	unlock.Inputs[0].SignatureScript = signatureScript
	b3 := builder.BuildBlock(consensushashing.BlockHash(b2), 0, unlock)
	b4 := builder.BuildBlock(consensushashing.BlockHash(b3), 0)
	return []*externalapi.DomainBlock{b1, b2, b3, b4}
}

func TestScriptValidation(t *testing.T) {
	t.Run("valid preimage", func(t *testing.T) {
		params := testParams()
		builder := testutils.NewChainBuilder(params)
		chain := buildHashLockChain(t, builder, params.CalcBlockSubsidy(1), []byte("the right preimage"))

		tc := newTestContext(t, params)
		tc.processBlocks(chain...)
		tc.requireTip(chain[3])
		metrics := tc.consensus.scriptValidator.Metrics()
		require.Equal(t, 2.0, testutil.ToFloat64(metrics.ScriptChecks))
		require.Equal(t, 0.0, testutil.ToFloat64(metrics.SkippedBlocks))
	})

	t.Run("invalid preimage", func(t *testing.T) {
		params := testParams()
		builder := testutils.NewChainBuilder(params)
		chain := buildHashLockChain(t, builder, params.CalcBlockSubsidy(1), []byte("a wrong preimage"))
		params.AssumeValid = consensushashing.BlockHash(chain[1])

		tc := newTestContext(t, params)
		tc.processBlocks(chain[:2]...)

		result, err := tc.consensus.ProcessBlock(chain[2])
		require.Equal(t, externalapi.ResultInvalid, result)
		require.True(t, errors.Is(err, ruleerrors.ErrScriptValidation), "unexpected error: %+v", err)
		tc.requireTip(chain[1])

		result, err = tc.consensus.ProcessHeader(chain[3].Header)
		require.Equal(t, externalapi.ResultInvalid, result)
		require.True(t, errors.Is(err, ruleerrors.ErrInvalidAncestorBlock), "unexpected error: %+v", err)
		require.Equal(t, 1.0, testutil.ToFloat64(tc.consensus.chainConnector.Metrics().InvalidBlocks))
	})

	t.Run("invalid preimage under assumed-valid block", func(t *testing.T) {
		params := testParams()
		builder := testutils.NewChainBuilder(params)
		chain := buildHashLockChain(t, builder, params.CalcBlockSubsidy(1), []byte("a wrong preimage"))
		params.AssumeValid = consensushashing.BlockHash(chain[3])

		tc := newTestContext(t, params)
		tc.processHeaders(chain...)
		tc.processBlocks(chain...)
		tc.requireTip(chain[3])

		metrics := tc.consensus.scriptValidator.Metrics()
		require.Equal(t, 0.0, testutil.ToFloat64(metrics.ScriptChecks))
		require.Equal(t, 4.0, testutil.ToFloat64(metrics.SkippedBlocks))
	})
}

func TestFailedBlockCascades(t *testing.T) {
	tc := newTestContext(t, testParams())

	b1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	// The coinbase claims fees that the block does not collect.
	overpaying := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 1)
	child := tc.builder.BuildBlock(consensushashing.BlockHash(overpaying), 0)
	grandchild := tc.builder.BuildBlock(consensushashing.BlockHash(child), 0)

	tc.processBlocks(b1)
	tc.processHeaders(overpaying, child)

	result, err := tc.consensus.ProcessBlock(overpaying)
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrBadCoinbaseValue), "unexpected error: %+v", err)
	tc.requireTip(b1)

	entry, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(overpaying))
	require.True(t, ok)
	require.NotZero(t, entry.Status()&blockindex.StatusFailedValidation)
	entry, ok = tc.consensus.EntryByHash(consensushashing.BlockHash(child))
	require.True(t, ok)
	require.NotZero(t, entry.Status()&blockindex.StatusFailedAncestor)

	result, err = tc.consensus.ProcessBlock(child)
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrKnownInvalid), "unexpected error: %+v", err)

	result, err = tc.consensus.ProcessHeader(grandchild.Header)
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrInvalidAncestorBlock), "unexpected error: %+v", err)

	// A valid sibling still extends the chain.
	sibling := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 0)
	tc.processBlocks(sibling)
	tc.requireTip(sibling)
}

func TestReorgFailingMidwayLandsOnValidPrefix(t *testing.T) {
	tc := newTestContext(t, testParams())
	recorder := newEventRecorder()

	a1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	a2 := tc.builder.BuildBlock(consensushashing.BlockHash(a1), 0)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(a1), 0)
	b3 := tc.builder.BuildBlock(consensushashing.BlockHash(b2), 0)
	// The coinbase claims fees that the block does not collect.
	b4 := tc.builder.BuildBlock(consensushashing.BlockHash(b3), 1)
	b5 := tc.builder.BuildBlock(consensushashing.BlockHash(b4), 0)
	for name, block := range map[string]*externalapi.DomainBlock{
		"a1": a1, "a2": a2, "b2": b2, "b3": b3, "b4": b4, "b5": b5} {
		recorder.name(block, name)
	}

	tc.processBlocks(a1, a2)
	tc.consensus.Subscribe(recorder.callback)
	tc.processHeaders(b2, b3, b4, b5)

	// Without b2 none of the bodies can be connected.
	tc.processBlocks(b5, b4, b3)
	tc.requireTip(a2)
	tc.waitForNotifications()
	require.Empty(t, recorder.takeEvents())

	// b5 is selected first, and connecting b4 fails after a2 was
	// disconnected and b2 and b3 were connected.
	tc.processBlocks(b2)
	tc.requireTip(b3)
	tc.waitForNotifications()
	require.Equal(t, []string{
		"disconnect a2",
		"connect b2",
		"connect b3",
		"tip b3",
	}, recorder.takeEvents())

	entry, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(b4))
	require.True(t, ok)
	require.NotZero(t, entry.Status()&blockindex.StatusFailedValidation)
	entry, ok = tc.consensus.EntryByHash(consensushashing.BlockHash(b5))
	require.True(t, ok)
	require.NotZero(t, entry.Status()&blockindex.StatusFailedAncestor)

	coins, tip := ledgerCoins(t, tc.consensus)
	require.Equal(t, *consensushashing.BlockHash(b3), *tip)
	require.Equal(t, expectedCoins([]*externalapi.DomainBlock{a1, b2, b3}), coins)

	metrics := tc.consensus.chainConnector.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.InvalidBlocks))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Reorgs))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BlocksDisconnected))
}

func TestCloseDeliversQueuedNotifications(t *testing.T) {
	tc := newTestContext(t, testParams())
	recorder := newEventRecorder()

	b1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 0)
	recorder.name(b1, "b1")
	recorder.name(b2, "b2")

	release := make(chan struct{})
	tc.consensus.Subscribe(func(notification *notifications.Notification) {
		<-release
		recorder.callback(notification)
	})
	tc.processBlocks(b1, b2)

	time.AfterFunc(100*time.Millisecond, func() { close(release) })
	require.NoError(t, tc.consensus.Close())
	require.Equal(t, []string{
		"connect b1",
		"tip b1",
		"connect b2",
		"tip b2",
	}, recorder.takeEvents())
}

func TestInvalidateBlock(t *testing.T) {
	tc := newTestContext(t, testParams())
	chain := tc.builder.BuildChain(tc.builder.Genesis(), 3)
	tc.processBlocks(chain...)

	err := tc.consensus.InvalidateBlock(consensushashing.BlockHash(chain[1]))
	require.NoError(t, err)
	tc.requireTip(chain[0])

	entry, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(chain[2]))
	require.True(t, ok)
	require.NotZero(t, entry.Status()&blockindex.StatusFailedAncestor)

	child := tc.builder.BuildBlock(consensushashing.BlockHash(chain[2]), 0)
	_, err = tc.consensus.ProcessHeader(child.Header)
	require.True(t, errors.Is(err, ruleerrors.ErrInvalidAncestorBlock), "unexpected error: %+v", err)

	replacement := tc.builder.BuildBlock(consensushashing.BlockHash(chain[0]), 0)
	tc.processBlocks(replacement)
	tc.requireTip(replacement)

	unknown := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{1})
	err = tc.consensus.InvalidateBlock(unknown)
	require.True(t, errors.Is(err, ruleerrors.ErrUnknownBlock), "unexpected error: %+v", err)
	err = tc.consensus.InvalidateBlock(tc.params.GenesisHash)
	require.Error(t, err)
}

func TestSnapshotsAreConsistent(t *testing.T) {
	tc := newTestContext(t, testParams())

	branchA := buildSpendingChain(tc, tc.builder.Genesis())
	tc.processBlocks(branchA...)

	branchB := buildSpendingChain(tc, tc.builder.Genesis())
	branchB = append(branchB, tc.builder.BuildBlock(consensushashing.BlockHash(branchB[2]), 0))
	expected := map[externalapi.DomainHash]coinSet{
		*consensushashing.BlockHash(branchA[2]): expectedCoins(branchA),
		*consensushashing.BlockHash(branchB[3]): expectedCoins(branchB),
	}

	stop := make(chan struct{})
	group, _ := errgroup.WithContext(context.Background())
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				err := tc.consensus.Snapshot(func(view *utxostore.View) error {
					coins := coinSet{}
					err := view.ForEachCoin(func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error {
						coins[*outpoint] = *coin
						return nil
					})
					if err != nil {
						return err
					}
					want, ok := expected[*view.Tip()]
					if !ok {
						return errors.Errorf("snapshot at unexpected tip %s", view.Tip())
					}
					if len(want) != len(coins) {
						return errors.Errorf("snapshot at %s has %d coins, expected %d",
							view.Tip(), len(coins), len(want))
					}
					for outpoint, coin := range want {
						got, ok := coins[outpoint]
						if !ok || !got.Equal(&coin) {
							return errors.Errorf("snapshot at %s has a wrong coin at %s", view.Tip(), outpoint)
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
		})
	}

	tc.processBlocks(branchB...)
	time.Sleep(10 * time.Millisecond)
	close(stop)
	require.NoError(t, group.Wait())
	tc.requireTip(branchB[3])
}

func TestRestart(t *testing.T) {
	t.Run("after close", func(t *testing.T) {
		tc := newTestContext(t, testParams())
		chain := buildSpendingChain(tc, tc.builder.Genesis())
		tc.processBlocks(chain...)
		coins, _ := ledgerCoins(t, tc.consensus)
		commitment := tc.consensus.utxoStore.Commitment()

		require.NoError(t, tc.consensus.Close())
		require.NoError(t, tc.consensus.Close(), "a second Close failed")
		tc.consensus = tc.open()

		tc.requireTip(chain[2])
		reloadedCoins, _ := ledgerCoins(t, tc.consensus)
		require.Equal(t, coins, reloadedCoins)
		require.Equal(t, *commitment, *tc.consensus.utxoStore.Commitment())

		next := tc.builder.BuildBlock(consensushashing.BlockHash(chain[2]), 0)
		tc.processBlocks(next)
		tc.requireTip(next)
	})

	t.Run("without flushing the ledger", func(t *testing.T) {
		tc := newTestContext(t, testParams())
		chain := buildSpendingChain(tc, tc.builder.Genesis())
		tc.processBlocks(chain...)
		coins, _ := ledgerCoins(t, tc.consensus)

		// The index is stored with every block while the ledger is
		// still cached, so a new Consensus reconnects the blocks.
		tc.consensus = tc.open()
		tc.requireTip(chain[2])
		reloadedCoins, _ := ledgerCoins(t, tc.consensus)
		require.Equal(t, coins, reloadedCoins)
	})
}

func TestSubmitResults(t *testing.T) {
	tc := newTestContext(t, testParams())
	chain := tc.builder.BuildChain(tc.builder.Genesis(), 2)

	result, err := tc.consensus.SubmitBlock([]byte{1, 2, 3})
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrMalformedInput), "unexpected error: %+v", err)

	result, err = tc.consensus.SubmitHeader([]byte{1, 2, 3})
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrMalformedInput), "unexpected error: %+v", err)

	result, err = tc.consensus.SubmitHeader(serialization.HeaderToBytes(chain[1].Header))
	require.Equal(t, externalapi.ResultOrphanMissingParent, result)
	require.True(t, errors.Is(err, ruleerrors.ErrOrphanHeader), "unexpected error: %+v", err)
	_, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(chain[1]))
	require.False(t, ok, "an orphan header was indexed")

	result, err = tc.consensus.SubmitBlock(serialization.BlockToBytes(chain[0]))
	require.NoError(t, err)
	require.Equal(t, externalapi.ResultAccepted, result)

	result, err = tc.consensus.SubmitBlock(serialization.BlockToBytes(chain[0]))
	require.NoError(t, err)
	require.Equal(t, externalapi.ResultDuplicateOrKnown, result)

	result, err = tc.consensus.ProcessBlock(tc.params.GenesisBlock)
	require.NoError(t, err)
	require.Equal(t, externalapi.ResultDuplicateOrKnown, result)

	entry, ok := tc.consensus.EntryAtHeight(1)
	require.True(t, ok)
	require.Equal(t, *consensushashing.BlockHash(chain[0]), *entry.Hash())
}

func TestMutatedBlockDoesNotFailHeader(t *testing.T) {
	tc := newTestContext(t, testParams())
	b1 := tc.builder.BuildBlock(tc.builder.Genesis(), 0)
	subsidy := tc.params.CalcBlockSubsidy(1)
	b2 := tc.builder.BuildBlock(consensushashing.BlockHash(b1), 0,
		testutils.SpendTransaction(testutils.CoinbaseOutpoint(b1), subsidy))
	tc.processBlocks(b1)

	mutated := b2.Clone()
	mutated.Transactions[1].Outputs[0].Value--
	result, err := tc.consensus.ProcessBlock(mutated)
	require.Equal(t, externalapi.ResultInvalid, result)
	require.True(t, errors.Is(err, ruleerrors.ErrBadMerkleRoot), "unexpected error: %+v", err)

	entry, ok := tc.consensus.EntryByHash(consensushashing.BlockHash(b2))
	require.True(t, ok)
	require.False(t, entry.Status().IsFailed())

	tc.processBlocks(b2)
	tc.requireTip(b2)
}
