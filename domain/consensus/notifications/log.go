package notifications

import (
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/util/panics"
)

var log = logger.RegisterSubSystem("NTFN")
var spawn = panics.GoroutineWrapperFunc(log)
