package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/selfwrite"
	"github.com/listenupapp/docwatch/internal/session"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// ManagerHandle wraps the session manager with shutdown capability.
type ManagerHandle struct {
	*session.Manager
}

// Shutdown implements do.Shutdownable. It closes every session and waits
// briefly for their loops to exit.
func (h *ManagerHandle) Shutdown() error {
	var open []*session.Session
	for _, path := range h.Paths() {
		if s, err := h.Session(path); err == nil {
			open = append(open, s)
		}
	}

	if err := h.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return session.Wait(ctx, open...)
}

// ProvideSessionManager provides the document session manager. The Shell
// must have been registered by the caller.
func ProvideSessionManager(i do.Injector) (*ManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	source := do.MustInvoke[*watcher.Watcher](i)
	reader := do.MustInvoke[*fingerprint.FileReader](i)
	suppressor := do.MustInvoke[*selfwrite.Suppressor](i)
	journal := do.MustInvoke[*JournalHandle](i)
	shell := do.MustInvoke[session.Shell](i)

	mgr := session.NewManager(source, reader, suppressor, shell, log.Logger.Logger, session.Options{
		Journal:          journal.Journal,
		DebounceWindow:   cfg.Watch.DebounceWindow,
		ReattachInterval: cfg.Watch.ReattachInterval,
		ResyncPerSecond:  cfg.Watch.ResyncPerSecond,
	})

	log.Info("Session manager ready")

	return &ManagerHandle{Manager: mgr}, nil
}
