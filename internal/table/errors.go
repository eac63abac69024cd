package table

import "errors"

var (
	ErrInvalidMagic       = errors.New("invalid table magic")
	ErrUnsupportedVersion = errors.New("unsupported table version")
	ErrCorruptFile        = errors.New("corrupt table file")
)
