package blockvalidator

import (
	"math/big"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/datastructures/blockindex"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/processes/transactionvalidator"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/consensushashing"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
	"github.com/utxonode/chaind/domain/consensus/utils/testutils"
)

type testContext struct {
	params     *chainparams.Params
	blockIndex *blockindex.BlockIndex
	validator  *BlockValidator
	builder    *testutils.ChainBuilder
	clock      *clock.TestClock
}

func newTestContext(t *testing.T, params *chainparams.Params) *testContext {
	blockIndex := blockindex.New()
	_, err := blockIndex.InsertGenesis(params.GenesisBlock.Header)
	if err != nil {
		t.Fatalf("InsertGenesis: %s", err)
	}

	testClock := clock.NewTestClock(time.Unix(params.GenesisBlock.Header.TimeInSeconds, 0).Add(24 * time.Hour))
	transactionValidator := transactionvalidator.New(params, blockIndex)
	return &testContext{
		params:     params,
		blockIndex: blockIndex,
		validator:  New(params, blockIndex, transactionValidator, testClock),
		builder:    testutils.NewChainBuilder(params),
		clock:      testClock,
	}
}

// insert indexes the header of block and returns its entry.
func (tc *testContext) insert(t *testing.T, block *externalapi.DomainBlock) *blockindex.Entry {
	entry, err := tc.blockIndex.InsertHeader(block.Header)
	if err != nil {
		t.Fatalf("InsertHeader: %s", err)
	}
	return entry
}

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func checkRuleError(t *testing.T, err error, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Fatalf("expected %s, got: %+v", expected, err)
	}
}

type mapCoinView map[externalapi.DomainOutpoint]*externalapi.UTXOEntry

func (m mapCoinView) StagedCoin(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	coin, ok := m[*outpoint]
	return coin, ok, nil
}

func TestValidateHeaderInIsolation(t *testing.T) {
	tc := newTestContext(t, chainparams.RegressionNetParams.Clone())
	block := tc.builder.BuildBlock(tc.params.GenesisHash, 0)
	checkNoError(t, tc.validator.ValidateHeaderInIsolation(block.Header))

	unknownVersion := block.Header.Clone()
	unknownVersion.Version = 2
	checkRuleError(t, tc.validator.ValidateHeaderInIsolation(unknownVersion), ruleerrors.ErrBlockVersionIsUnknown)

	tooEasy := block.Header.Clone()
	tooEasy.Bits = 0x2100ffff
	checkRuleError(t, tc.validator.ValidateHeaderInIsolation(tooEasy), ruleerrors.ErrTargetTooHigh)

	negative := block.Header.Clone()
	negative.Bits = 0x01810000
	checkRuleError(t, tc.validator.ValidateHeaderInIsolation(negative), ruleerrors.ErrNegativeTarget)

	unsolved := block.Header.Clone()
	target := pow.CompactToBig(unsolved.Bits)
	for pow.HashToBig(consensushashing.HeaderHash(unsolved)).Cmp(target) <= 0 {
		unsolved.Nonce++
	}
	checkRuleError(t, tc.validator.ValidateHeaderInIsolation(unsolved), ruleerrors.ErrInvalidPoW)
}

func TestValidateHeaderInContext(t *testing.T) {
	tc := newTestContext(t, chainparams.RegressionNetParams.Clone())
	var parent *blockindex.Entry
	for _, block := range tc.builder.BuildChain(tc.params.GenesisHash, 12) {
		parent = tc.insert(t, block)
	}
	block := tc.builder.BuildBlock(parent.Hash(), 0)
	checkNoError(t, tc.validator.ValidateHeaderInContext(block.Header, parent))

	t.Run("time at the median", func(t *testing.T) {
		header := block.Header.Clone()
		header.TimeInSeconds = tc.blockIndex.PastMedianTime(parent)
		checkRuleError(t, tc.validator.ValidateHeaderInContext(header, parent), ruleerrors.ErrTimeTooOld)

		header.TimeInSeconds++
		checkNoError(t, tc.validator.ValidateHeaderInContext(header, parent))
	})

	t.Run("time too far in the future", func(t *testing.T) {
		header := block.Header.Clone()
		tc.clock.SetTime(time.Unix(header.TimeInSeconds, 0).Add(-2*time.Hour - time.Second))
		defer tc.clock.SetTime(time.Unix(header.TimeInSeconds, 0).Add(24 * time.Hour))
		checkRuleError(t, tc.validator.ValidateHeaderInContext(header, parent), ruleerrors.ErrTimeTooMuchInTheFuture)

		tc.clock.SetTime(time.Unix(header.TimeInSeconds, 0).Add(-2 * time.Hour))
		checkNoError(t, tc.validator.ValidateHeaderInContext(header, parent))
	})

	t.Run("unexpected difficulty", func(t *testing.T) {
		header := block.Header.Clone()
		header.Bits = 0x1f7fffff
		checkRuleError(t, tc.validator.ValidateHeaderInContext(header, parent), ruleerrors.ErrUnexpectedDifficulty)
	})
}

func TestRequiredDifficulty(t *testing.T) {
	params := chainparams.SimnetParams.Clone()
	params.TargetTimespan = 10 * params.TargetTimePerBlock
	if params.BlocksPerRetarget() != 10 {
		t.Fatalf("TestRequiredDifficulty: expected a retarget every 10 blocks, got %d", params.BlocksPerRetarget())
	}

	// indexChain indexes nine blocks spaced interval seconds apart and
	// returns the last one, after which a retarget is due.
	indexChain := func(t *testing.T, tc *testContext, interval int64) *blockindex.Entry {
		parent := tc.blockIndex.Genesis()
		for i := 0; i < 9; i++ {
			header := &externalapi.DomainBlockHeader{
				Version:       1,
				ParentHash:    *parent.Hash(),
				TimeInSeconds: parent.TimeInSeconds() + interval,
				Bits:          parent.Header().Bits,
			}
			if bits := tc.validator.RequiredDifficulty(parent); bits != parent.Header().Bits {
				t.Fatalf("difficulty changed to %08x before the retarget height", bits)
			}
			var err error
			parent, err = tc.blockIndex.InsertHeader(header)
			if err != nil {
				t.Fatalf("InsertHeader: %s", err)
			}
		}
		return parent
	}

	checkBits := func(t *testing.T, got, expected uint32) {
		if got != expected {
			t.Fatalf("expected bits %08x, got %08x", expected, got)
		}
	}

	t.Run("blocks twice as fast", func(t *testing.T) {
		tc := newTestContext(t, params)
		parent := indexChain(t, tc, 300)
		oldTarget := pow.CompactToBig(parent.Header().Bits)
		expectedTarget := new(big.Int).Div(new(big.Int).Mul(oldTarget, big.NewInt(9*300)), big.NewInt(6000))
		checkBits(t, tc.validator.RequiredDifficulty(parent), pow.BigToCompact(expectedTarget))
	})

	t.Run("adjustment is clamped", func(t *testing.T) {
		tc := newTestContext(t, params)
		parent := indexChain(t, tc, 1)
		oldTarget := pow.CompactToBig(parent.Header().Bits)
		expectedTarget := new(big.Int).Div(oldTarget, big.NewInt(params.RetargetAdjustmentFactor))
		checkBits(t, tc.validator.RequiredDifficulty(parent), pow.BigToCompact(expectedTarget))
	})

	t.Run("capped at the pow limit", func(t *testing.T) {
		tc := newTestContext(t, params)
		parent := indexChain(t, tc, 1200)
		checkBits(t, tc.validator.RequiredDifficulty(parent), pow.BigToCompact(params.PowLimit))
	})

	t.Run("no retargeting", func(t *testing.T) {
		noRetargeting := params.Clone()
		noRetargeting.PowNoRetargeting = true
		tc := newTestContext(t, noRetargeting)
		parent := indexChain(t, tc, 300)
		checkBits(t, tc.validator.RequiredDifficulty(parent), parent.Header().Bits)
	})
}

func TestGenesisBodyIsValidInIsolation(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *chainparams.Params) {
		tc := newTestContext(t, params)
		checkNoError(t, tc.validator.ValidateBodyInIsolation(params.GenesisBlock))
	})
}

func TestValidateBodyInIsolation(t *testing.T) {
	tc := newTestContext(t, chainparams.RegressionNetParams.Clone())
	someOutpoint := externalapi.NewDomainOutpoint(externalapi.NewDomainHashFromByteArray(&[32]byte{1}), 0)

	tests := []struct {
		name          string
		modify        func(block *externalapi.DomainBlock)
		expectedError error
	}{
		{
			name:          "valid",
			modify:        func(*externalapi.DomainBlock) {},
			expectedError: nil,
		},
		{
			name:          "no transactions",
			modify:        func(block *externalapi.DomainBlock) { block.Transactions = nil },
			expectedError: ruleerrors.ErrNoTransactions,
		},
		{
			name: "too big",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions[1].Outputs[0].ScriptPublicKey = make([]byte, 1_000_000)
			},
			expectedError: ruleerrors.ErrBlockTooBig,
		},
		{
			name: "first transaction is not a coinbase",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions[0], block.Transactions[1] = block.Transactions[1], block.Transactions[0]
			},
			expectedError: ruleerrors.ErrFirstTxNotCoinbase,
		},
		{
			name: "two coinbases",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions = append(block.Transactions, block.Transactions[0].Clone())
			},
			expectedError: ruleerrors.ErrMultipleCoinbases,
		},
		{
			name: "transaction without outputs",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions[1].Outputs = nil
			},
			expectedError: ruleerrors.ErrNoTxOutputs,
		},
		{
			name: "duplicate transactions",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions = append(block.Transactions, block.Transactions[1].Clone())
			},
			expectedError: ruleerrors.ErrDuplicateTx,
		},
		{
			name: "double spend",
			modify: func(block *externalapi.DomainBlock) {
				block.Transactions = append(block.Transactions, testutils.SpendTransaction(someOutpoint, 5))
			},
			expectedError: ruleerrors.ErrDoubleSpendInSameBlock,
		},
	}

	for _, test := range tests {
		block := tc.builder.BuildBlock(tc.params.GenesisHash, 0, testutils.SpendTransaction(someOutpoint, 10))
		test.modify(block)
		tc.builder.Resolve(block)
		err := tc.validator.ValidateBodyInIsolation(block)
		if test.expectedError == nil {
			if err != nil {
				t.Fatalf("TestValidateBodyInIsolation: %s: unexpected error: %+v", test.name, err)
			}
			continue
		}
		if !errors.Is(err, test.expectedError) {
			t.Fatalf("TestValidateBodyInIsolation: %s: expected %s, got: %+v", test.name, test.expectedError, err)
		}
	}

	block := tc.builder.BuildBlock(tc.params.GenesisHash, 0, testutils.SpendTransaction(someOutpoint, 10))
	block.Transactions[1].Outputs[0].Value++
	checkRuleError(t, tc.validator.ValidateBodyInIsolation(block), ruleerrors.ErrBadMerkleRoot)
}

func TestValidateBodyInContext(t *testing.T) {
	params := chainparams.RegressionNetParams.Clone()
	params.CoinbaseMaturity = 1
	tc := newTestContext(t, params)

	block1 := tc.builder.BuildBlock(params.GenesisHash, 0)
	tc.insert(t, block1)
	coinbaseOutpoint := testutils.CoinbaseOutpoint(block1)
	subsidy := params.CalcBlockSubsidy(1)
	view := mapCoinView{
		*coinbaseOutpoint: externalapi.NewUTXOEntry(subsidy, testutils.OpTrueScript(), true, 1),
	}
	block1Hash := consensushashing.BlockHash(block1)

	t.Run("spends with fees", func(t *testing.T) {
		spend := testutils.SpendTransaction(coinbaseOutpoint, subsidy-1000)
		// A transaction may spend an output created earlier in the same block.
		chained := testutils.SpendTransaction(
			externalapi.NewDomainOutpoint(consensushashing.TransactionID(spend), 0), subsidy-3000)
		block := tc.builder.BuildBlock(block1Hash, 3000, spend, chained)
		entry := tc.insert(t, block)

		spentCoins, err := tc.validator.ValidateBodyInContext(block, entry, view)
		checkNoError(t, err)
		if len(spentCoins) != 3 {
			t.Fatalf("expected spent coins for 3 transactions, got %d", len(spentCoins))
		}
		if spentCoins[0] != nil {
			t.Fatalf("the coinbase has spent coins")
		}
		if !spentCoins[1][0].Equal(view[*coinbaseOutpoint]) {
			t.Fatalf("the spend does not spend the coinbase coin")
		}
		chainedInput := spentCoins[2][0]
		if chainedInput.Amount != subsidy-1000 || chainedInput.BlockHeight != 2 || chainedInput.IsCoinbase {
			t.Fatalf("unexpected coin spent by the chained transaction: %+v", chainedInput)
		}
	})

	t.Run("coinbase claims more than fees", func(t *testing.T) {
		spend := testutils.SpendTransaction(coinbaseOutpoint, subsidy-1000)
		block := tc.builder.BuildBlock(block1Hash, 1001, spend)
		entry := tc.insert(t, block)

		_, err := tc.validator.ValidateBodyInContext(block, entry, view)
		checkRuleError(t, err, ruleerrors.ErrBadCoinbaseValue)
	})

	t.Run("missing input", func(t *testing.T) {
		missing := externalapi.NewDomainOutpoint(externalapi.NewDomainHashFromByteArray(&[32]byte{9}), 3)
		block := tc.builder.BuildBlock(block1Hash, 0, testutils.SpendTransaction(missing, 1))
		entry := tc.insert(t, block)

		_, err := tc.validator.ValidateBodyInContext(block, entry, view)
		var missingTxOut ruleerrors.ErrMissingTxOut
		if !errors.As(err, &missingTxOut) {
			t.Fatalf("expected ErrMissingTxOut, got: %+v", err)
		}
		if len(missingTxOut.MissingOutpoints) != 1 || *missingTxOut.MissingOutpoints[0] != *missing {
			t.Fatalf("unexpected missing outpoints %v", missingTxOut.MissingOutpoints)
		}
	})

	t.Run("spending more than the inputs", func(t *testing.T) {
		block := tc.builder.BuildBlock(block1Hash, 0, testutils.SpendTransaction(coinbaseOutpoint, subsidy+1))
		entry := tc.insert(t, block)

		_, err := tc.validator.ValidateBodyInContext(block, entry, view)
		checkRuleError(t, err, ruleerrors.ErrSpendTooHigh)
	})

	t.Run("unfinalized transaction", func(t *testing.T) {
		spend := testutils.SpendTransaction(coinbaseOutpoint, subsidy)
		spend.LockTime = 100
		spend.Inputs[0].Sequence = 0
		block := tc.builder.BuildBlock(block1Hash, 0, spend)
		entry := tc.insert(t, block)

		_, err := tc.validator.ValidateBodyInContext(block, entry, view)
		checkRuleError(t, err, ruleerrors.ErrUnfinalizedTx)
	})
}
