// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signal

import (
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/util/panics"
)

var log = logger.RegisterSubSystem("CHND")
var spawn = panics.GoroutineWrapperFunc(log)
