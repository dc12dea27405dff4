package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/utxostore"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/testutils"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/infrastructure/db/database/badgerdb"
)

// testClockOffset puts the test clock far enough after genesis that the
// blocks built by the tests are never too far in the future.
const testClockOffset = 30 * 24 * 60 * 60

func testParams() *chainparams.Params {
	params := chainparams.RegressionNetParams.Clone()
	params.CoinbaseMaturity = 1
	return params
}

type testContext struct {
	t         *testing.T
	params    *chainparams.Params
	db        database.Database
	consensus *consensus
	builder   *testutils.ChainBuilder
}

func newTestContext(t *testing.T, params *chainparams.Params) *testContext {
	db, err := badgerdb.NewBadgerDB("", 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tc := &testContext{
		t:       t,
		params:  params,
		db:      db,
		builder: testutils.NewChainBuilder(params),
	}
	tc.consensus = tc.open()
	return tc
}

// open instantiates a Consensus over the test database.
func (tc *testContext) open() *consensus {
	config := DefaultConfig(tc.params)
	config.UTXOCacheSize = 1000
	config.SigCacheSize = 1000
	config.ScriptThreads = 2
	genesisTime := tc.params.GenesisBlock.Header.TimeInSeconds
	config.Clock = clock.NewTestClock(time.Unix(genesisTime+testClockOffset, 0))

	c, err := NewFactory().NewConsensus(config, tc.db)
	require.NoError(tc.t, err)
	tc.t.Cleanup(func() { c.Close() })
	return c.(*consensus)
}

func (tc *testContext) processBlocks(blocks ...*externalapi.DomainBlock) {
	for _, block := range blocks {
		result, err := tc.consensus.ProcessBlock(block)
		require.NoError(tc.t, err, "block %s", consensushashing.BlockHash(block))
		require.Equal(tc.t, externalapi.ResultAccepted, result)
	}
}

func (tc *testContext) processHeaders(blocks ...*externalapi.DomainBlock) {
	for _, block := range blocks {
		result, err := tc.consensus.ProcessHeader(block.Header)
		require.NoError(tc.t, err)
		require.Equal(tc.t, externalapi.ResultAccepted, result)
	}
}

func (tc *testContext) requireTip(block *externalapi.DomainBlock) {
	require.Equal(tc.t, *consensushashing.BlockHash(block), *tc.consensus.Tip().Hash())
	require.Equal(tc.t, *consensushashing.BlockHash(block), *tc.consensus.utxoStore.Tip())
}

func (tc *testContext) waitForNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(tc.t, tc.consensus.WaitForNotifications(ctx))
}

// coinSet is a set of outpoints with their coins.
type coinSet map[externalapi.DomainOutpoint]externalapi.UTXOEntry

func ledgerCoins(t *testing.T, c Consensus) (coinSet, *externalapi.DomainHash) {
	coins := coinSet{}
	var tip *externalapi.DomainHash
	err := c.Snapshot(func(view *utxostore.View) error {
		tip = view.Tip()
		return view.ForEachCoin(func(outpoint *externalapi.DomainOutpoint, coin *externalapi.UTXOEntry) error {
			coins[*outpoint] = *coin
			return nil
		})
	})
	require.NoError(t, err)
	return coins, tip
}

// expectedCoins returns the outputs created and not spent by chain, which
// starts right after genesis.
func expectedCoins(chain []*externalapi.DomainBlock) coinSet {
	coins := coinSet{}
	for i, block := range chain {
		height := uint64(i + 1)
		for txIndex, tx := range block.Transactions {
			isCoinbase := txIndex == 0
			if !isCoinbase {
				for _, input := range tx.Inputs {
					delete(coins, input.PreviousOutpoint)
				}
			}
			txID := consensushashing.TransactionID(tx)
			for outputIndex, output := range tx.Outputs {
				outpoint := externalapi.NewDomainOutpoint(txID, uint32(outputIndex))
				coins[*outpoint] = *externalapi.NewUTXOEntry(output.Value, output.ScriptPublicKey, isCoinbase, height)
			}
		}
	}
	return coins
}

// eventRecorder records the notifications it receives as short strings.
type eventRecorder struct {
	sync.Mutex
	names  map[externalapi.DomainHash]string
	events []string
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{names: make(map[externalapi.DomainHash]string)}
}

func (r *eventRecorder) name(block *externalapi.DomainBlock, name string) {
	r.Lock()
	defer r.Unlock()
	r.names[*consensushashing.BlockHash(block)] = name
}

func (r *eventRecorder) callback(notification *notifications.Notification) {
	r.Lock()
	defer r.Unlock()

	switch data := notification.Data.(type) {
	case *notifications.BlockConnectedData:
		r.events = append(r.events, "connect "+r.names[*data.Entry.Hash()])
	case *notifications.BlockDisconnectedData:
		r.events = append(r.events, "disconnect "+r.names[*data.Entry.Hash()])
	case *notifications.ChainTipChangedData:
		r.events = append(r.events, "tip "+r.names[*data.Tip.Hash()])
	}
}

func (r *eventRecorder) takeEvents() []string {
	r.Lock()
	defer r.Unlock()
	events := r.events
	r.events = nil
	return events
}
