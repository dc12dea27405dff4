package txscript

import (
	"github.com/utxonode/chaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("SCRP")
