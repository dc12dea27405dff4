package consensus

import (
	"github.com/utxonode/chaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNSS")
