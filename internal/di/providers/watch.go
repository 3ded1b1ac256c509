package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/selfwrite"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// ProvideWatcher provides the platform watch source.
func ProvideWatcher(i do.Injector) (*watcher.Watcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	backend, err := watcher.ParseBackend(cfg.Watch.Backend)
	if err != nil {
		return nil, err
	}

	return watcher.New(log.Logger.Logger, watcher.Options{Backend: backend})
}

// ProvideFingerprintReader provides the disk fingerprint reader.
func ProvideFingerprintReader(i do.Injector) (*fingerprint.FileReader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return fingerprint.NewFileReader(fingerprint.Mode(cfg.Watch.FingerprintMode)), nil
}

// ProvideSuppressor provides the self-write suppressor shared by all sessions.
func ProvideSuppressor(i do.Injector) (*selfwrite.Suppressor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	return selfwrite.New(cfg.Watch.SelfWriteTimeout, log.Logger.Logger), nil
}
