package ui

import (
	"github.com/skobkin/machinecfg/internal/app"
)

// BuildRuntimeDependencies wires the UI to a running app runtime. A nil
// runtime yields dependencies with only the launch options and onQuit set.
func BuildRuntimeDependencies(rt *app.Runtime, launch LaunchOptions, onQuit func()) RuntimeDependencies {
	dep := RuntimeDependencies{Launch: launch}
	dep.Actions.OnQuit = onQuit
	if rt == nil {
		return dep
	}

	dep.Data = runtimeData(rt)
	dep.Actions.OnSave = rt.SaveAndApplyConfig
	dep.Actions.OnClearHistory = rt.ClearHistory
	dep.Actions.AddNotifier = rt.AddNotifier

	return dep
}

func runtimeData(rt *app.Runtime) DataDependencies {
	data := DataDependencies{
		Config:            rt.CurrentConfig(),
		Bus:               rt.Bus,
		Ready:             rt.Ready,
		CurrentConnStatus: rt.CurrentConnStatus,
		LoadHistory:       rt.History,
	}
	// Typed nil pointers must not end up inside the interfaces.
	if rt.Translator != nil {
		data.Catalog = rt.Translator
	}
	if rt.MachineSettings != nil {
		data.MachineSettings = rt.MachineSettings
	}

	return data
}
