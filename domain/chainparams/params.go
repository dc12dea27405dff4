// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainparams

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/utils/constants"
)

// These variables are the chain proof-of-work limit parameters for each default
// network.
var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a block can
	// have for the main network. It is the value 2^224 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// regressionPowLimit is the highest proof of work value a block
	// can have for the regression test network. It is the value 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// testnetPowLimit is the highest proof of work value a block
	// can have for the test network. It is the value 2^224 - 1.
	testnetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// simnetPowLimit is the highest proof of work value a block
	// can have for the simulation test network. It is the value 2^255 - 1.
	simnetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

const (
	baseSubsidy              = 50 * constants.SatoshiPerCoin
	targetTimespan           = 14 * 24 * time.Hour
	targetTimePerBlock       = 10 * time.Minute
	retargetAdjustmentFactor = 4
)

// Params defines a network by its consensus parameters. They are
// supplied at startup and must not be mutated once an engine uses them.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *externalapi.DomainBlock

	// GenesisHash is the starting block hash.
	GenesisHash *externalapi.DomainHash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// PowNoRetargeting disables difficulty retargeting. Every block must
	// carry the bits of its parent.
	PowNoRetargeting bool

	// TargetTimespan is the desired amount of time that should elapse
	// before the block difficulty requirement is examined to determine how
	// it should be changed in order to maintain the desired block
	// generation rate.
	TargetTimespan time.Duration

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// RetargetAdjustmentFactor is the adjustment factor used to limit
	// the minimum and maximum amount of adjustment that can occur between
	// difficulty retargets.
	RetargetAdjustmentFactor int64

	// CoinbaseMaturity is the number of blocks required before newly mined
	// coins (coinbase transactions) can be spent.
	CoinbaseMaturity uint64

	// BaseSubsidy is the coinbase reward of the first subsidy era.
	BaseSubsidy uint64

	// SubsidyReductionInterval is the interval of blocks before the subsidy
	// is reduced.
	SubsidyReductionInterval uint64

	// BIP0034Height is the height from which the coinbase must start
	// with a push of the block height.
	BIP0034Height uint64

	// BIP0065Height is the height from which OP_CHECKLOCKTIMEVERIFY
	// is enforced.
	BIP0065Height uint64

	// CSVHeight is the height from which relative lock times
	// (BIP0068), OP_CHECKSEQUENCEVERIFY (BIP0112) and median-time-past
	// lock time evaluation (BIP0113) are enforced.
	CSVHeight uint64

	// AssumeValid is the hash of a block whose ancestors (and itself) may
	// skip script verification once buried under MinimumChainWork.
	// Nil disables the shortcut.
	AssumeValid *externalapi.DomainHash

	// MinimumChainWork is the cumulative work a chain must reach before
	// any of its blocks are validated. Nil or zero disables the gate.
	MinimumChainWork *big.Int
}

// BlocksPerRetarget returns the number of blocks between difficulty
// retargets.
func (p *Params) BlocksPerRetarget() uint64 {
	return uint64(p.TargetTimespan / p.TargetTimePerBlock)
}

// CalcBlockSubsidy returns the subsidy amount a block at the provided height
// should have. This is mainly used for determining how much the coinbase for
// newly generated blocks awards as well as validating the coinbase for blocks
// has the expected value.
//
// The subsidy is halved every SubsidyReductionInterval blocks. Mathematically
// this is: BaseSubsidy / 2^(height/SubsidyReductionInterval)
func (p *Params) CalcBlockSubsidy(height uint64) uint64 {
	if p.SubsidyReductionInterval == 0 {
		return p.BaseSubsidy
	}

	halvings := height / p.SubsidyReductionInterval
	if halvings >= 64 {
		return 0
	}
	return p.BaseSubsidy >> halvings
}

// Clone returns a shallow copy of the params that can be modified
// without affecting the registered network.
func (p *Params) Clone() *Params {
	clone := *p
	return &clone
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:                     "mainnet",
	GenesisBlock:             &genesisBlock,
	GenesisHash:              genesisHash,
	PowLimit:                 mainPowLimit,
	PowLimitBits:             0x1d00ffff,
	PowNoRetargeting:         false,
	TargetTimespan:           targetTimespan,
	TargetTimePerBlock:       targetTimePerBlock,
	RetargetAdjustmentFactor: retargetAdjustmentFactor,
	CoinbaseMaturity:         100,
	BaseSubsidy:              baseSubsidy,
	SubsidyReductionInterval: 210000,
	BIP0034Height:            227931,
	BIP0065Height:            388381,
	CSVHeight:                419328,
	AssumeValid:              newHashFromStr("0000000000000000077d2b3654b555e761f7668214d33031c5b79e13c067c6b5"),
	MinimumChainWork:         newBigFromHex("00000000000000000000000000000000000000000169c44563c298c981ed9c07"),
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = Params{
	Name:                     "testnet",
	GenesisBlock:             &genesisBlock,
	GenesisHash:              genesisHash,
	PowLimit:                 testnetPowLimit,
	PowLimitBits:             0x1d00ffff,
	PowNoRetargeting:         false,
	TargetTimespan:           targetTimespan,
	TargetTimePerBlock:       targetTimePerBlock,
	RetargetAdjustmentFactor: retargetAdjustmentFactor,
	CoinbaseMaturity:         100,
	BaseSubsidy:              baseSubsidy,
	SubsidyReductionInterval: 210000,
	BIP0034Height:            21111,
	BIP0065Height:            581885,
	CSVHeight:                770112,
	AssumeValid:              newHashFromStr("0000000005e8b8a3e04bfb6a09196e0e5392d9b44b650413822fb6d7044f7da5"),
	MinimumChainWork:         newBigFromHex("00000000000000000000000000000000000000000000006e9efa687dda922009"),
}

// RegressionNetParams defines the network parameters for the regression test
// network. Not to be confused with the test network, this network is
// sometimes simply called "regtest".
var RegressionNetParams = Params{
	Name:                     "regtest",
	GenesisBlock:             &regtestGenesisBlock,
	GenesisHash:              regtestGenesisHash,
	PowLimit:                 regressionPowLimit,
	PowLimitBits:             0x207fffff,
	PowNoRetargeting:         true,
	TargetTimespan:           targetTimespan,
	TargetTimePerBlock:       targetTimePerBlock,
	RetargetAdjustmentFactor: retargetAdjustmentFactor,
	CoinbaseMaturity:         100,
	BaseSubsidy:              baseSubsidy,
	SubsidyReductionInterval: 150,
	BIP0034Height:            500,
	BIP0065Height:            1351,
	CSVHeight:                432,
	AssumeValid:              nil,
	MinimumChainWork:         nil,
}

// SimnetParams defines the network parameters for the simulation test
// network. This network is similar to the normal test network except it is
// intended for private use within a group of individuals doing simulation
// testing.
var SimnetParams = Params{
	Name:                     "simnet",
	GenesisBlock:             &simnetGenesisBlock,
	GenesisHash:              simnetGenesisHash,
	PowLimit:                 simnetPowLimit,
	PowLimitBits:             0x207fffff,
	PowNoRetargeting:         false,
	TargetTimespan:           targetTimespan,
	TargetTimePerBlock:       targetTimePerBlock,
	RetargetAdjustmentFactor: retargetAdjustmentFactor,
	CoinbaseMaturity:         100,
	BaseSubsidy:              baseSubsidy,
	SubsidyReductionInterval: 210000,
	BIP0034Height:            0,
	BIP0065Height:            0,
	CSVHeight:                0,
	AssumeValid:              nil,
	MinimumChainWork:         nil,
}

var (
	// ErrDuplicateNet describes an error where the parameters for a
	// network could not be set due to the network already being a standard
	// network or previously-registered into this package.
	ErrDuplicateNet = errors.New("duplicate network")

	// ErrUnknownNet describes an error where the requested network
	// was never registered.
	ErrUnknownNet = errors.New("unknown network")
)

var registeredNets = make(map[string]*Params)

// Register registers the network parameters for a network. This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks).
func Register(params *Params) error {
	if _, ok := registeredNets[params.Name]; ok {
		return errors.Wrapf(ErrDuplicateNet, "network %s", params.Name)
	}
	registeredNets[params.Name] = params
	return nil
}

// ParamsByName returns the registered network with the given name.
func ParamsByName(name string) (*Params, error) {
	params, ok := registeredNets[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNet, "network %s", name)
	}
	return params, nil
}

// mustRegister performs the same function as Register except it panics if there
// is an error. This should only be called from package init functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

// newHashFromStr converts the passed big-endian hex string into a
// DomainHash. It panics on an error since it will only (and must only)
// be called with hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *externalapi.DomainHash {
	hash, err := externalapi.NewDomainHashFromString(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}

// newBigFromHex converts the passed hex string into a big.Int. It panics
// on an error since it is only called with hard-coded values.
func newBigFromHex(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("invalid hex in source file: " + hexStr)
	}
	return n
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainnetParams)
	mustRegister(&TestnetParams)
	mustRegister(&RegressionNetParams)
	mustRegister(&SimnetParams)
}
