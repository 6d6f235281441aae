package def

import "errors"

// ErrInvalidDEF is the sentinel wrapped by ErrFormat, letting callers use
// errors.Is(err, def.ErrInvalidDEF) without matching on message text.
var ErrInvalidDEF = errors.New("def: invalid DEF structure")

// Unwrap lets errors.Is(err, ErrInvalidDEF) succeed for any ErrFormat.
func (e *ErrFormat) Unwrap() error { return ErrInvalidDEF }
