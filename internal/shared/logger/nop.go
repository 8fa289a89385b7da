package logger

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() Interface { return nop{} }

type nop struct{}

func (nop) Debug(string, ...any)  {}
func (nop) Info(string, ...any)   {}
func (nop) Warn(string, ...any)   {}
func (nop) Error(string, ...any)  {}
func (nop) With(...any) Interface { return nop{} }
func (nop) Named(string) Interface {
	return nop{}
}
func (nop) Debugw(string, ...any) {}
func (nop) Infow(string, ...any)  {}
func (nop) Warnw(string, ...any)  {}
func (nop) Errorw(string, ...any) {}
