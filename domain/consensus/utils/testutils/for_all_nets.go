package testutils

import (
	"testing"

	"github.com/utxonode/chaind/domain/chainparams"
)

// ForAllNets runs the passed testFunc with a copy of every default network's
// params, so that testFunc may modify them.
func ForAllNets(t *testing.T, testFunc func(*testing.T, *chainparams.Params)) {
	allParams := []*chainparams.Params{
		&chainparams.MainnetParams,
		&chainparams.TestnetParams,
		&chainparams.RegressionNetParams,
		&chainparams.SimnetParams,
	}

	for _, params := range allParams {
		params := params.Clone()
		t.Run(params.Name, func(t *testing.T) {
			t.Parallel()
			t.Logf("Running test for %s", params.Name)
			testFunc(t, params)
		})
	}
}
