package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
	"github.com/utxonode/chaind/domain/consensus/utils/testutils"
	"github.com/utxonode/chaind/infrastructure/db/database/badgerdb"
)

func newTestConsensus(t *testing.T, params *chainparams.Params) consensus.Consensus {
	db, err := badgerdb.NewBadgerDB("", 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := consensus.DefaultConfig(params)
	config.UTXOCacheSize = 1000
	config.SigCacheSize = 1000
	config.Clock = clock.NewTestClock(time.Unix(params.GenesisBlock.Header.TimeInSeconds+30*24*60*60, 0))
	c, err := consensus.NewFactory().NewConsensus(config, db)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func serializeBlocks(t *testing.T, blocks ...*externalapi.DomainBlock) *bytes.Buffer {
	buf := &bytes.Buffer{}
	for _, block := range blocks {
		require.NoError(t, serialization.SerializeBlock(buf, block))
	}
	return buf
}

func TestImportBlocks(t *testing.T) {
	params := chainparams.RegressionNetParams.Clone()
	c := newTestConsensus(t, params)
	builder := testutils.NewChainBuilder(params)
	chain := builder.BuildChain(builder.Genesis(), 5)

	// The second copy of the first block is already known, and the
	// overpaying block is rejected without stopping the import.
	overpaying := builder.BuildBlock(consensushashing.BlockHash(chain[4]), 1)
	input := serializeBlocks(t, append(chain, chain[0], overpaying)...)

	stats, err := importBlocks(c, input, make(chan struct{}))
	require.NoError(t, err)
	require.Equal(t, &importStats{read: 7, accepted: 5, known: 1, rejected: 1}, stats)
	require.Equal(t, *consensushashing.BlockHash(chain[4]), *c.Tip().Hash())
}

func TestImportBlocksTruncated(t *testing.T) {
	params := chainparams.RegressionNetParams.Clone()
	c := newTestConsensus(t, params)
	builder := testutils.NewChainBuilder(params)
	chain := builder.BuildChain(builder.Genesis(), 2)

	input := serializeBlocks(t, chain...)
	input.Truncate(input.Len() - 1)

	stats, err := importBlocks(c, input, make(chan struct{}))
	require.Error(t, err)
	require.Equal(t, 1, stats.accepted)
	require.Equal(t, *consensushashing.BlockHash(chain[0]), *c.Tip().Hash())
}

func TestImportBlocksInterrupted(t *testing.T) {
	params := chainparams.RegressionNetParams.Clone()
	c := newTestConsensus(t, params)
	builder := testutils.NewChainBuilder(params)

	interrupt := make(chan struct{})
	close(interrupt)
	stats, err := importBlocks(c, serializeBlocks(t, builder.BuildChain(builder.Genesis(), 2)...), interrupt)
	require.NoError(t, err)
	require.Zero(t, stats.read)
	require.Equal(t, *params.GenesisHash, *c.Tip().Hash())
}
