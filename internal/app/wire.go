//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"jentic/internal/domain"
)

func InitializeApplication(cfg domain.Config, logging LoggingConfig, surface Surface) (*Application, error) {
	wire.Build(AppSet)
	return nil, nil
}
