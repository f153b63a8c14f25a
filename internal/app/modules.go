package app

import (
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/modules/arith"
	"github.com/vk/detflow/modules/env_vars"
	"github.com/vk/detflow/modules/export"
	"github.com/vk/detflow/modules/globals"
	"github.com/vk/detflow/modules/print"
	"github.com/vk/detflow/modules/signals"
	"github.com/vk/detflow/modules/source"
)

// coreModules is the definitive list of all modules that are compiled into
// the detflow binary.
func (a *App) coreModules() []registry.Module {
	return []registry.Module{
		&source.Module{Openers: a.openers},
		&arith.Module{},
		&env_vars.Module{},
		&globals.Module{},
		&signals.Module{},
		&print.Module{Out: a.outW},
		&export.Module{},
	}
}
