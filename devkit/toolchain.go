package devkit

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Toolchain selects which vendor's tools drive a compile, assemble or
// link step.
type Toolchain int

const (
	DevkitPPC Toolchain = iota
	CodeWarrior
)

func (t Toolchain) String() string {
	if t == CodeWarrior {
		return "CodeWarrior"
	}
	return "DevkitPPC"
}

func defaultToolchainPaths() (devkitPPC, codeWarrior string) {
	if runtime.GOOS == "windows" {
		return "C:/devkitPro/devkitPPC/bin/",
			"C:/Program Files (x86)/Metrowerks/CodeWarrior/PowerPC_EABI_Tools/Command_Line_Tools/"
	}
	return "/opt/devkitpro/devkitPPC/bin/", "/"
}

func defaultCFlags(t Toolchain) []string {
	if t == CodeWarrior {
		return []string{"-proc", "gekko", "-Cpp_exceptions", "off", "-use_lmw_stmw", "on", "-fp", "fmadd", "-schedule", "on"}
	}
	return []string{"-w", "-std=c99", "-O1", "-fno-asynchronous-unwind-tables"}
}

func defaultCppFlags(t Toolchain) []string {
	if t == CodeWarrior {
		return []string{"-proc", "gekko", "-Cpp_exceptions", "off", "-fp_contract", "on", "-inline", "auto", "-rostr", "-use_lmw_stmw", "on", "-nodefaults", "-msgstyle", "gcc", "-gccinc", "-fp", "hard", "-schedule", "on"}
	}
	return []string{"-w", "-std=c++98", "-O1", "-fno-asynchronous-unwind-tables", "-fno-rtti"}
}

func defaultAsmFlags(t Toolchain) []string {
	if t == CodeWarrior {
		return []string{"-proc", "gekko"}
	}
	return []string{"-w"}
}

func defaultLinkerFlags(t Toolchain) []string {
	if t == CodeWarrior {
		return []string{"-fp", "fmadd", "-nodefaults"}
	}
	return nil
}

// runTool invokes one external tool, failing with its combined output
// attached when it exits nonzero.
func (p *Project) runTool(args []string) error {
	p.logf(2, "exec: %s", strings.Join(args, " "))

	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %v\n%s", ErrorToolchain, args[0], err, out)
	}
	if len(out) > 0 {
		p.logf(2, "%s", out)
	}
	return nil
}

func (p *Project) compileC(src sourceFile, cpp bool) (string, error) {
	obj := filepath.Base(src.path) + ".o"

	var args []string
	if p.Compiler == CodeWarrior {
		lang := "c"
		if cpp {
			lang = "c++"
		}
		args = []string{p.CodeWarriorPath + "mwcceppc", "-lang", lang,
			"-c", filepath.Join(p.SrcDir, src.path), "-o", filepath.Join(p.ObjDir, obj), "-i", p.SrcDir}
	} else {
		tool := "powerpc-eabi-gcc"
		if cpp {
			tool = "powerpc-eabi-g++"
		}
		args = []string{p.DevkitPPCPath + tool,
			"-c", filepath.Join(p.SrcDir, src.path), "-o", filepath.Join(p.ObjDir, obj), "-I", p.SrcDir}
	}

	if src.useGlobalFlags {
		if cpp {
			args = append(args, p.CppFlags...)
		} else {
			args = append(args, p.CFlags...)
		}
	}
	args = append(args, src.flags...)

	return obj, p.runTool(args)
}

func (p *Project) assemble(src sourceFile) (string, error) {
	obj := filepath.Base(src.path) + ".o"

	var args []string
	if p.Assembler == CodeWarrior {
		args = []string{p.CodeWarriorPath + "mwasmeppc",
			"-c", filepath.Join(p.SrcDir, src.path), "-o", filepath.Join(p.ObjDir, obj), "-i", p.SrcDir}
	} else {
		args = []string{p.DevkitPPCPath + "powerpc-eabi-as",
			filepath.Join(p.SrcDir, src.path), "-o", filepath.Join(p.ObjDir, obj), "-I", p.SrcDir}
	}

	if src.useGlobalFlags {
		args = append(args, p.AsmFlags...)
	}
	args = append(args, src.flags...)

	return obj, p.runTool(args)
}

// link produces the single relocated object all symbols come from. The
// base address anchors .text unless a linker script takes over, and the
// SDA bases are exported so compiler-generated small-data references
// resolve.
func (p *Project) link(base uint32) error {
	outObj := filepath.Join(p.ObjDir, p.Name+".o")
	outMap := filepath.Join(p.ObjDir, p.Name+".map")

	var args []string
	if p.Linker == CodeWarrior {
		args = []string{p.CodeWarriorPath + "mwldeppc", "-o", outObj}
	} else {
		args = []string{p.DevkitPPCPath + "powerpc-eabi-ld", "-o", outObj}
	}

	if len(p.linkerScripts) == 0 {
		args = append(args, "-Ttext", fmt.Sprintf("0x%08X", base))
	}
	if p.sdaSet {
		args = append(args, "--defsym", fmt.Sprintf("_SDA_BASE_=0x%08X", p.sdaBase))
		args = append(args, "--defsym", fmt.Sprintf("_SDA2_BASE_=0x%08X", p.sda2Base))
	}
	for _, script := range p.linkerScripts {
		args = append(args, "-T", script)
	}
	for _, obj := range p.objFiles {
		args = append(args, filepath.Join(p.ObjDir, obj.path))
	}
	args = append(args, "-Map", outMap)
	args = append(args, p.LinkerFlags...)

	return p.runTool(args)
}
