package config

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/chainparams"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet          bool   `long:"testnet" description:"Use the test network"`
	RegressionTest   bool   `long:"regtest" description:"Use the regression test network"`
	Simnet           bool   `long:"simnet" description:"Use the simulation test network"`
	AssumeValid      string `long:"assumevalid" description:"Hash of a block whose ancestors' scripts are assumed valid, or 0 to validate all scripts"`
	MinimumChainWork string `long:"minimumchainwork" description:"Hex encoded cumulative work a chain must reach before its blocks are validated, or 0 to disable"`

	ActiveNetParams *chainparams.Params
}

// ResolveNetwork parses the network command line arguments and sets
// ActiveNetParams accordingly. It returns an error if more than one network
// was selected, or if an override is malformed.
func (networkFlags *NetworkFlags) ResolveNetwork() error {
	// Default net is main net.
	params := &chainparams.MainnetParams

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if networkFlags.Testnet {
		numNets++
		params = &chainparams.TestnetParams
	}
	if networkFlags.RegressionTest {
		numNets++
		params = &chainparams.RegressionNetParams
	}
	if networkFlags.Simnet {
		numNets++
		params = &chainparams.SimnetParams
	}
	if numNets > 1 {
		return errors.New("multiple network parameters (testnet, regtest, simnet) cannot be " +
			"used together. Please choose only one network")
	}

	// The active params are a copy, so that the overrides below never
	// leak into the registered network.
	networkFlags.ActiveNetParams = params.Clone()
	return networkFlags.applyOverrides()
}

func (networkFlags *NetworkFlags) applyOverrides() error {
	params := networkFlags.ActiveNetParams

	switch networkFlags.AssumeValid {
	case "":
	case "0":
		params.AssumeValid = nil
	default:
		assumeValid, err := externalapi.NewDomainHashFromString(networkFlags.AssumeValid)
		if err != nil {
			return errors.Wrapf(err, "invalid assumevalid %s", networkFlags.AssumeValid)
		}
		params.AssumeValid = assumeValid
	}

	if networkFlags.MinimumChainWork != "" {
		minimumChainWork, ok := new(big.Int).SetString(networkFlags.MinimumChainWork, 16)
		if !ok || minimumChainWork.Sign() < 0 {
			return errors.Errorf("invalid minimumchainwork %s", networkFlags.MinimumChainWork)
		}
		params.MinimumChainWork = minimumChainWork
	}
	return nil
}

// NetParams returns the selected network parameters.
func (networkFlags *NetworkFlags) NetParams() *chainparams.Params {
	return networkFlags.ActiveNetParams
}
