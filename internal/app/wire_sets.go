//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
	NewTransport,
)

var BrokerSet = wire.NewSet(
	NewBroker,
	NewToolAdapter,
	NewAgentTools,
	NewStore,
	NewSyncer,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	BrokerSet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
