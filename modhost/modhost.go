// ==============================================================================================
// FILE: modhost/modhost.go
// ==============================================================================================
// PACKAGE: modhost
// PURPOSE: Import resolution. A Host is the per-context loader state (reserved/loaded modules,
//          the search path); the native-loader registry backing RegisterNative is process-wide,
//          guarded by a sync.RWMutex, with singleflight coalescing concurrent registration/lookup
//          of the same name from multiple host goroutines into one call.
// ==============================================================================================

package modhost

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"wings/compiler"
	"wings/lexer"
	"wings/object"
	"wings/parser"
	"wings/vm"
)

// ModuleLoader populates a freshly reserved module's globals, either by
// registering native Go-backed attributes directly or by running compiled
// script code against it (the source loader below does the latter).
type ModuleLoader func(machine *vm.VM, globals *object.AttrTable) error

var (
	registryMu sync.RWMutex
	registry   = map[string]ModuleLoader{}
	sfg        singleflight.Group
)

// RegisterNative installs a native module loader under name, for every Host
// in the process. Hosts check this registry before falling back to the
// source loader, so a native "sys" or "random" module (if a host embeds one)
// always wins over a same-named .py file on the search path.
func RegisterNative(name string, loader ModuleLoader) {
	sfg.Do("register:"+name, func() (interface{}, error) {
		registryMu.Lock()
		registry[name] = loader
		registryMu.Unlock()
		return nil, nil
	})
}

func lookupNative(name string) (ModuleLoader, bool) {
	v, err, _ := sfg.Do("lookup:"+name, func() (interface{}, error) {
		registryMu.RLock()
		defer registryMu.RUnlock()
		loader, ok := registry[name]
		if !ok {
			return nil, errNotRegistered
		}
		return loader, nil
	})
	if err != nil {
		return nil, false
	}
	return v.(ModuleLoader), true
}

var errNotRegistered = fmt.Errorf("no native loader registered")

// Host is the per-context import state: which modules are fully loaded,
// which are mid-load (so a cycle raises ImportError instead of recursing
// forever), the search path for source modules, and the shared builtins
// table every module's own globals chain to.
type Host struct {
	machine    *vm.VM
	builtins   *object.AttrTable
	importPath []string
	loaded     map[string]*object.Module
	reserved   map[string]bool
	log        *logrus.Logger
}

// New builds a Host bound to machine. builtins is the AttrTable every
// imported module's own globals inherit from (so `len`, `Exception`, et al.
// are visible without each module re-importing them); importPath is
// searched, in order, for "<dir>/<name>.py" when name has no native loader.
func New(machine *vm.VM, builtins *object.AttrTable, importPath []string, log *logrus.Logger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{
		machine:    machine,
		builtins:   builtins,
		importPath: importPath,
		loaded:     make(map[string]*object.Module),
		reserved:   make(map[string]bool),
		log:        log,
	}
}

// SetImportPath replaces the directories searched for source modules.
func (h *Host) SetImportPath(paths []string) { h.importPath = paths }

// Import resolves name per spec.md §4.M: already-loaded modules are
// returned as-is; otherwise the name is reserved for the duration of its
// own load (so an import cycle raises ImportError rather than deadlocking
// or recursing), populated via a native loader or the source loader, and
// wrapped into a module object whose attributes are the loaded globals.
func (h *Host) Import(name string) (*object.Module, error) {
	if mod, ok := h.loaded[name]; ok {
		return mod, nil
	}
	if h.reserved[name] {
		return nil, &object.BuiltinError{Class: object.ImportErrorClass,
			Msg: fmt.Sprintf("cannot import '%s': circular import", name)}
	}
	h.reserved[name] = true
	globals := object.NewAttrTable(h.builtins)
	err := h.populate(name, globals)
	delete(h.reserved, name)
	if err != nil {
		return nil, &object.BuiltinError{Class: object.ImportErrorClass, Msg: err.Error()}
	}
	mod := &object.Module{Name: name, Attrs: globals}
	h.loaded[name] = mod
	h.log.WithField("module", name).Info("module imported")
	return mod, nil
}

func (h *Host) populate(name string, globals *object.AttrTable) error {
	if loader, ok := lookupNative(name); ok {
		return loader(h.machine, globals)
	}
	return h.loadSource(name, globals)
}

// loadSource reads "<dir>/<name>.py" off the first matching importPath
// entry, compiles it, and runs its top-level code against globals.
func (h *Host) loadSource(name string, globals *object.AttrTable) error {
	var lastErr error
	for _, dir := range h.importPath {
		path := filepath.Join(dir, name+".py")
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		l := lexer.New(string(data))
		p := parser.New(l)
		program := p.ParseProgram()
		if p.Errors().HasErrors() {
			return fmt.Errorf("%s: %s", path, p.Errors().Error())
		}
		c := compiler.New()
		fn, compileErr := c.Compile(program)
		if compileErr != nil {
			return fmt.Errorf("%s: %w", path, compileErr)
		}
		if c.Errors().HasErrors() {
			return fmt.Errorf("%s: %s", path, c.Errors().Error())
		}
		if _, err := h.machine.RunModule(fn, globals); err != nil {
			return err
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no import path configured")
	}
	return fmt.Errorf("no module named '%s' (%s)", name, lastErr)
}
