package app

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus"
	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/serialization"
)

const importProgressInterval = 10 * time.Second

type importStats struct {
	read     int
	accepted int
	known    int
	rejected int
}

func (s *importStats) String() string {
	return fmt.Sprintf("%d blocks read (%d accepted, %d already known, %d rejected)",
		s.read, s.accepted, s.known, s.rejected)
}

// importBlocks processes the blocks serialized back to back in r, in
// order, until r is exhausted or interrupt is closed. Rejected blocks are
// logged and skipped. Errors other than rule violations stop the import.
func importBlocks(c consensus.Consensus, r io.Reader, interrupt <-chan struct{}) (*importStats, error) {
	reader := bufio.NewReader(r)
	stats := &importStats{}
	lastProgress := time.Now()
	for {
		select {
		case <-interrupt:
			log.Infof("Import interrupted")
			return stats, nil
		default:
		}

		block, err := serialization.DeserializeBlock(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, errors.Wrapf(err, "failed reading block %d", stats.read+1)
		}
		stats.read++

		result, err := c.ProcessBlock(block)
		switch result {
		case externalapi.ResultAccepted:
			stats.accepted++
		case externalapi.ResultDuplicateOrKnown:
			stats.known++
		default:
			if ruleerrors.IsStoreIOError(err) || ruleerrors.IsInvariantError(err) {
				return stats, err
			}
			stats.rejected++
			log.Warnf("Rejected block %d of the import (%s): %s", stats.read, result, err)
		}

		if time.Since(lastProgress) >= importProgressInterval {
			log.Infof("Import progress: %s, tip %s", stats, c.Tip())
			lastProgress = time.Now()
		}
	}
}
