//go:build wireinject

package app

import (
	"github.com/google/wire"
)

func buildAppWithWire(opts Options) (*App, error) {
	wire.Build(
		provideEnv,
		provideStore,
		provideInvoker,
		provideCollector,
		provideSymbols,
		provideServer,
		newApp,
	)
	return nil, nil
}
