package app

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/utxonode/chaind/domain/consensus"
	"github.com/utxonode/chaind/domain/consensus/notifications"
	"github.com/utxonode/chaind/infrastructure/config"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/util/profiling"
)

// ComponentManager is a wrapper for all the chaind services
type ComponentManager struct {
	cfg       *config.Config
	consensus consensus.Consensus
	registry  *prometheus.Registry
	interrupt <-chan struct{}

	tipSubscription notifications.SubscriptionID
	importDone      chan struct{}

	started, shutdown int32
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db database.Database, interrupt <-chan struct{}) (
	*ComponentManager, error) {

	c, err := consensus.NewFactory().NewConsensus(cfg.ConsensusConfig(), db)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	for _, collector := range c.Collectors() {
		err := registry.Register(collector)
		if err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "failed registering the consensus metrics")
		}
	}

	return &ComponentManager{
		cfg:       cfg,
		consensus: c,
		registry:  registry,
		interrupt: interrupt,
	}, nil
}

// Start launches all the chaind services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting chaind")

	a.tipSubscription = a.consensus.Subscribe(logTipChange, notifications.NTChainTipChanged)

	if a.cfg.MetricsListen != "" {
		profiling.Start(a.cfg.MetricsListen, a.registry, log)
	}

	if a.cfg.ImportFile != "" {
		a.importDone = make(chan struct{})
		spawn("ComponentManager.importFile", func() {
			defer close(a.importDone)
			a.importFile(a.cfg.ImportFile)
		})
	}
}

// Stop gracefully shuts down all the chaind services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("chaind is already in the process of shutting down")
		return
	}

	log.Warnf("chaind shutting down")

	if a.importDone != nil {
		<-a.importDone
	}
	a.consensus.Unsubscribe(a.tipSubscription)

	err := a.consensus.Close()
	if err != nil {
		log.Errorf("Error closing the consensus: %+v", err)
	}
}

// Consensus returns the consensus engine run by a.
func (a *ComponentManager) Consensus() consensus.Consensus {
	return a.consensus
}

func (a *ComponentManager) importFile(path string) {
	file, err := os.Open(path)
	if err != nil {
		log.Errorf("Failed opening the import file: %s", err)
		return
	}
	defer file.Close()

	log.Infof("Importing blocks from %s", path)
	stats, err := importBlocks(a.consensus, file, a.interrupt)
	if err != nil {
		log.Errorf("Import of %s stopped after %s: %+v", path, stats, err)
		return
	}
	log.Infof("Import of %s finished: %s", path, stats)
}

func logTipChange(notification *notifications.Notification) {
	data, ok := notification.Data.(*notifications.ChainTipChangedData)
	if !ok {
		return
	}
	log.Debugf("New chain tip %s", data.Tip)
}
