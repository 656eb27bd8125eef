package config

import (
	_ "github.com/quicknotes/offline-hub/internal/cache/fsstore"
	_ "github.com/quicknotes/offline-hub/internal/cache/sqlitestore"
)
