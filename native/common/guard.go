package common

import "errors"

// ErrModulePaused is returned by Guard when the module's global circuit
// breaker is engaged. Per-collateral pause flags are handled by the modules
// themselves.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause registry consulted by module engines.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused. A nil view or
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
