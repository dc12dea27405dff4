package app

import (
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/util/panics"
)

var log = logger.RegisterSubSystem("CHND")
var spawn = panics.GoroutineWrapperFunc(log)
