package ldb

import "github.com/utxonode/chaind/infrastructure/logger"

var log = logger.RegisterSubSystem("LDB")
