package app

import (
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/modules/portfolio"
	"github.com/vk/viewgrid/modules/rates"
)

// coreModules is the definitive list of all function modules that are
// compiled into the viewgrid binary.
var coreModules = []registry.Module{
	&rates.Module{},
	&portfolio.Module{},
}
