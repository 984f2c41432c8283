package app

import (
	"github.com/openfield/canvass/civicrm"
	"github.com/openfield/canvass/config"
	"github.com/openfield/canvass/store"
)

type App struct {
	*store.Store
	CRM  *civicrm.Client
	Sync *civicrm.Syncer
	config.Config
}
