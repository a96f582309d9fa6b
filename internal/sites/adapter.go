package sites

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/nupi-ai/comfort/internal/page"
)

// Adapter is a ControlsHost defined by a JavaScript file:
//
//	module.exports = {
//	  kind: "vimeo",
//	  hosts: ["vimeo.com", "player.vimeo.com"],
//	  selector: ".vp-controls",
//	  button: function (active) { return { background: "...", opacity: 1, tooltip: "comfortModeTooltipOn" }; }
//	};
//
// button is optional; without it the default presentation is used.
type Adapter struct {
	kind     Kind
	hosts    []string
	selector string
	path     string

	mu     sync.Mutex
	vm     *goja.Runtime
	button goja.Callable
}

// LoadAdapter evaluates an adapter file.
func LoadAdapter(path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("site adapter: read %s: %w", path, err)
	}
	return ParseAdapter(path, string(data))
}

// ParseAdapter evaluates adapter source. name is used in errors and as the
// fallback kind.
func ParseAdapter(name, source string) (*Adapter, error) {
	vm := goja.New()
	exports := vm.NewObject()
	vm.Set("module", vm.NewObject())
	vm.Set("exports", exports)

	if _, err := vm.RunString(source); err != nil {
		return nil, fmt.Errorf("site adapter: execute %s: %w", name, err)
	}

	if moduleObj := vm.Get("module"); moduleObj != nil {
		if moduleExports := moduleObj.ToObject(vm).Get("exports"); moduleExports != nil && !goja.IsUndefined(moduleExports) {
			exports = moduleExports.ToObject(vm)
		}
	}

	a := &Adapter{path: name, vm: vm}

	if kind := exports.Get("kind"); kind != nil && !goja.IsUndefined(kind) {
		a.kind = Kind(strings.TrimSpace(kind.String()))
	}
	if a.kind == KindUnknown {
		a.kind = Kind(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	}

	if hosts := exports.Get("hosts"); hosts != nil {
		if arr, ok := hosts.Export().([]interface{}); ok {
			for _, h := range arr {
				if str, ok := h.(string); ok && strings.TrimSpace(str) != "" {
					a.hosts = append(a.hosts, strings.ToLower(strings.TrimSpace(str)))
				}
			}
		}
	}
	if len(a.hosts) == 0 {
		return nil, fmt.Errorf("site adapter %s: hosts must list at least one host name", name)
	}

	if sel := exports.Get("selector"); sel != nil && !goja.IsUndefined(sel) {
		a.selector = sel.String()
	}
	if a.selector == "" {
		return nil, fmt.Errorf("site adapter %s: missing selector", name)
	}

	if button := exports.Get("button"); button != nil && !goja.IsUndefined(button) {
		fn, ok := goja.AssertFunction(button)
		if !ok {
			return nil, fmt.Errorf("site adapter %s: button must be function", name)
		}
		a.button = fn
	}

	return a, nil
}

func (a *Adapter) Kind() Kind       { return a.kind }
func (a *Adapter) Selector() string { return a.selector }

// Hosts returns the host names the adapter serves.
func (a *Adapter) Hosts() []string {
	return append([]string(nil), a.hosts...)
}

// Button calls the adapter's button function. Missing fields and script
// errors fall back to DefaultButton.
func (a *Adapter) Button(active bool) page.ButtonState {
	state := DefaultButton(active)
	if a.button == nil {
		return state
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.button(goja.Undefined(), a.vm.ToValue(active))
	if err != nil {
		log.Printf("[Sites] adapter %s button failed: %v", a.kind, err)
		return state
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return state
	}
	obj := res.ToObject(a.vm)
	if v := obj.Get("background"); v != nil && !goja.IsUndefined(v) {
		state.Background = v.String()
	}
	if v := obj.Get("opacity"); v != nil && !goja.IsUndefined(v) {
		state.Opacity = v.ToFloat()
	}
	if v := obj.Get("tooltip"); v != nil && !goja.IsUndefined(v) {
		state.Tooltip = v.String()
	}
	return state
}
