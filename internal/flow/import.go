package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/luxbind/wiz-core/internal/homeconfig"
)

// ImportHomeConfig downloads the home document behind link and stores
// it, then renames committed entries that predate any home knowledge.
// The link must match the allow-listed prefix; nothing is fetched
// otherwise.
func (m *Manager) ImportHomeConfig(ctx context.Context, link string) error {
	if !strings.HasPrefix(link, m.cfg.HomeLinkPrefix) {
		return fmt.Errorf("%w: %q", ErrLinkNotAllowed, link)
	}

	doc, err := m.fetcher.Fetch(ctx, link)
	if err != nil {
		return fmt.Errorf("importing home config from %s: %w", link, err)
	}
	if err := m.home.Save(ctx, link, doc); err != nil {
		return err
	}

	m.renameEntries(ctx, doc)
	return nil
}

// ImportHomeFile loads a bundled home document from the local
// filesystem and stores it.
func (m *Manager) ImportHomeFile(ctx context.Context, path string) error {
	doc, err := homeconfig.LoadFile(path)
	if err != nil {
		return fmt.Errorf("importing home config from file %s: %w", path, err)
	}
	if err := m.home.Save(ctx, "file:"+path, doc); err != nil {
		return err
	}

	m.renameEntries(ctx, doc)
	return nil
}

// ClearHomeConfig removes the stored home document. Committed entries
// keep their names.
func (m *Manager) ClearHomeConfig(ctx context.Context) error {
	return m.home.Clear(ctx)
}

// renameEntries re-resolves titles of entries committed before a home
// document existed. Each host is validated again to refetch the bulb
// type; unreachable devices are logged and skipped, the pass keeps
// going.
func (m *Manager) renameEntries(ctx context.Context, doc *homeconfig.HomeDocument) {
	entries, err := m.entries.List(ctx)
	if err != nil {
		m.logger.Warn("listing entries for rename pass failed", "error", err.Error())
		return
	}

	for _, entry := range entries {
		if entry.HomeLink != "" {
			continue
		}

		bt, _, err := m.validate(ctx, entry.Host)
		if err != nil {
			m.logger.Warn("skipping rename, device unreachable",
				"unique_id", entry.UniqueID,
				"host", entry.Host,
				"error", err.Error(),
			)
			continue
		}

		title := m.resolver.FullName(bt, entry.UniqueID, doc)
		if title == entry.Title {
			continue
		}
		if err := m.entries.RenameEntry(ctx, entry.UniqueID, title); err != nil {
			m.logger.Warn("renaming entry failed",
				"unique_id", entry.UniqueID,
				"error", err.Error(),
			)
			continue
		}
		m.logger.Info("entry renamed from home document",
			"unique_id", entry.UniqueID,
			"old_title", entry.Title,
			"new_title", title,
		)
	}
}
