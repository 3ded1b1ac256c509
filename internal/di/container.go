// Package di provides dependency injection configuration for docwatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/di/providers"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/selfwrite"
	"github.com/listenupapp/docwatch/internal/session"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// NewContainer creates and configures the DI container with all providers.
// The configuration and the user-facing shell come from the caller.
func NewContainer(cfg *config.Config, shell session.Shell) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, shell)
	do.Provide(injector, providers.ProvideLogger)

	// Watch pipeline
	do.Provide(injector, providers.ProvideWatcher)
	do.Provide(injector, providers.ProvideFingerprintReader)
	do.Provide(injector, providers.ProvideSuppressor)

	// Journal
	do.Provide(injector, providers.ProvideJournal)

	// Sessions
	do.Provide(injector, providers.ProvideSessionManager)

	return injector
}

// Bootstrap initializes all services and returns the session manager.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) (*providers.ManagerHandle, error) {
	if _, err := do.Invoke[*providers.LoggerHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*watcher.Watcher](injector); err != nil {
		return nil, err
	}
	_ = do.MustInvoke[*fingerprint.FileReader](injector)
	_ = do.MustInvoke[*selfwrite.Suppressor](injector)
	if _, err := do.Invoke[*providers.JournalHandle](injector); err != nil {
		return nil, err
	}

	return do.Invoke[*providers.ManagerHandle](injector)
}
