package chainselector

import "github.com/utxonode/chaind/infrastructure/logger"

var log = logger.RegisterSubSystem("CSEL")
