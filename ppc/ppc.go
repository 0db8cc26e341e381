// Package ppc assembles the small set of PowerPC (Gekko/Broadway)
// instruction forms needed for code injection: unconditional branches and
// the immediate-operand arithmetic/logical forms used to load addresses.
package ppc

import "errors"

var (
	ErrorBranchRange     = errors.New("branch offset does not fit the 26-bit displacement field")
	ErrorBranchAlignment = errors.New("branch addresses must be 4-byte aligned")
)

const (
	// Signed 26-bit displacement, low two bits always zero.
	BranchOffsetMin = -0x02000000
	BranchOffsetMax = 0x01FFFFFC
)

// MaskField truncates v to the given number of bits.
func MaskField(v int64, bits uint) uint32 {
	return uint32(v) & uint32((int64(1)<<bits)-1)
}

// SignExtend interprets the low bits of v as a signed quantity.
func SignExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// Lo returns the low half of an address, as used by the @l modifier.
func Lo(v uint32) uint16 {
	return uint16(v)
}

// Hi returns the high half of an address, as used by the @h modifier.
func Hi(v uint32) uint16 {
	return uint16(v >> 16)
}

// Hia returns the adjusted high half of an address, as used by the @ha
// modifier. When bit 15 of the low half is set the high half is incremented
// by one, so that (Hia(v)<<16) + SignExtend(Lo(v), 16) == v for every v.
func Hia(v uint32) uint16 {
	hi := uint16(v >> 16)
	if v&0x8000 != 0 {
		hi++
	}
	return hi
}

// AssembleBranch encodes an I-form branch at addr to target. The lk flag
// selects bl over b. Both addresses must be word aligned and the
// displacement must fit the signed 26-bit field (about +/-32 MiB).
func AssembleBranch(addr, target uint32, lk bool) (uint32, error) {
	if addr%4 != 0 || target%4 != 0 {
		return 0, ErrorBranchAlignment
	}

	offset := int64(target) - int64(addr)
	if offset < BranchOffsetMin || offset > BranchOffsetMax {
		return 0, ErrorBranchRange
	}

	insn := uint32(18) << 26 /* b */
	insn |= MaskField(offset, 26)
	if lk {
		insn |= 1
	}
	return insn, nil
}

// DecodeBranch recovers the displacement and link bit from an I-form branch.
// ok is false if insn is not an unconditional branch.
func DecodeBranch(insn uint32) (offset int32, lk bool, ok bool) {
	if insn>>26 != 18 {
		return 0, false, false
	}
	if insn&2 != 0 { /* AA: absolute branches are never emitted here */
		return 0, false, false
	}
	return SignExtend(insn&0x03FFFFFC, 26), insn&1 != 0, true
}

func assembleDForm(opcode, rD, rA uint32, imm uint16) uint32 {
	return opcode<<26 | (rD&31)<<21 | (rA&31)<<16 | uint32(imm)
}

func AssembleAddi(rD, rA uint32, simm int16) uint32 {
	return assembleDForm(14, rD, rA, uint16(simm))
}

func AssembleAddis(rD, rA uint32, simm int16) uint32 {
	return assembleDForm(15, rD, rA, uint16(simm))
}

func AssembleOri(rA, rS uint32, uimm uint16) uint32 {
	return assembleDForm(24, rS, rA, uimm)
}

func AssembleOris(rA, rS uint32, uimm uint16) uint32 {
	return assembleDForm(25, rS, rA, uimm)
}

// AssembleLi is the "li rD,simm" mnemonic, addi with rA=0.
func AssembleLi(rD uint32, simm int16) uint32 {
	return AssembleAddi(rD, 0, simm)
}

// AssembleLis is the "lis rD,simm" mnemonic, addis with rA=0.
func AssembleLis(rD uint32, simm int16) uint32 {
	return AssembleAddis(rD, 0, simm)
}

func AssembleNop() uint32 {
	return AssembleOri(0, 0, 0)
}
