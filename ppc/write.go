package ppc

// Image is the write surface the in-place helpers patch: anything that
// accepts word writes at virtual addresses. A loaded DOL satisfies it.
type Image interface {
	WriteUint32(addr uint32, value uint32) error
}

// WriteBranch assembles a branch at addr targeting target and patches it
// into img. The lk flag selects bl over b.
func WriteBranch(img Image, addr, target uint32, lk bool) error {
	insn, err := AssembleBranch(addr, target, lk)
	if err != nil {
		return err
	}
	return img.WriteUint32(addr, insn)
}

func WriteAddi(img Image, addr uint32, rD, rA uint32, simm int16) error {
	return img.WriteUint32(addr, AssembleAddi(rD, rA, simm))
}

func WriteAddis(img Image, addr uint32, rD, rA uint32, simm int16) error {
	return img.WriteUint32(addr, AssembleAddis(rD, rA, simm))
}

func WriteOri(img Image, addr uint32, rA, rS uint32, uimm uint16) error {
	return img.WriteUint32(addr, AssembleOri(rA, rS, uimm))
}

func WriteOris(img Image, addr uint32, rA, rS uint32, uimm uint16) error {
	return img.WriteUint32(addr, AssembleOris(rA, rS, uimm))
}

func WriteLi(img Image, addr uint32, rD uint32, simm int16) error {
	return img.WriteUint32(addr, AssembleLi(rD, simm))
}

func WriteLis(img Image, addr uint32, rD uint32, simm int16) error {
	return img.WriteUint32(addr, AssembleLis(rD, simm))
}

func WriteNop(img Image, addr uint32) error {
	return img.WriteUint32(addr, AssembleNop())
}
