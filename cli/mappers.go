package main

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/alecthomas/kong"
)

// baseMapper decodes integer arguments with a fixed default base, so DOL
// addresses can be typed as bare hex. An explicit 0x/0X prefix selects hex
// regardless of the default.
type baseMapper struct {
	base int
}

func (m baseMapper) Decode(ctx *kong.DecodeContext, target reflect.Value) error {
	var raw string
	if err := ctx.Scan.PopValueInto("int", &raw); err != nil {
		return err
	}

	base := m.base
	if len(raw) > 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
		base = 16
	}

	v, err := strconv.ParseInt(raw, base, target.Type().Bits())
	if err != nil {
		return fmt.Errorf("expected a base-%d integer: %v", base, err)
	}
	target.SetInt(v)
	return nil
}
