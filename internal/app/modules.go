package app

import (
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/modules/httpprobe"
	"github.com/specialistvlad/conveyorgo/modules/print"
	"github.com/specialistvlad/conveyorgo/modules/shell"
	"github.com/specialistvlad/conveyorgo/modules/webhook"
)

// coreModules is the definitive list of all runner modules that are compiled
// into the conveyorgo binary.
var coreModules = []registry.Module{
	&shell.Module{},
	&httpprobe.Module{},
	&print.Module{},
	&webhook.Module{},
}
