package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/docwatch/internal/config"
	"github.com/listenupapp/docwatch/internal/store"
	"github.com/listenupapp/docwatch/internal/store/sqlite"
)

// JournalHandle wraps the document journal with shutdown capability.
type JournalHandle struct {
	store.Journal
}

// Shutdown implements do.Shutdownable.
func (h *JournalHandle) Shutdown() error {
	return h.Close()
}

// ProvideJournal provides the SQLite journal, or a no-op one when disabled.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	if !cfg.Journal.Enabled {
		log.Info("Document journal disabled")
		return &JournalHandle{Journal: store.NewNoopJournal()}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sqlite.Open(cfg.Journal.Path, log.Logger.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Document journal opened", "path", cfg.Journal.Path)

	return &JournalHandle{Journal: db}, nil
}
