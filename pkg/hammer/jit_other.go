//go:build !(amd64 && linux)

package hammer

import "errors"

// ErrJITUnsupported is returned by JITExecutor on platforms other than
// linux/amd64. Nothing falls back to NewInterpretedExecutor
// automatically; the interpreted executor is chosen when the JIT is off.
var ErrJITUnsupported = errors.New("hammer: JIT executor requires linux/amd64")

// JITExecutor is a no-op stand-in outside linux/amd64.
type JITExecutor struct{}

func NewJITExecutor() *JITExecutor { return &JITExecutor{} }

func (j *JITExecutor) Compile(body Schedule) error { return ErrJITUnsupported }

func (j *JITExecutor) Run(body Schedule) (int, error) { return 0, ErrJITUnsupported }

func (j *JITExecutor) Close() error { return nil }
