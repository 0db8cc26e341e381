package devkit

import "errors"

var (
	ErrorUnresolvedSymbol    = errors.New("symbol is not present in the symbol table")
	ErrorBranchOutOfRange    = errors.New("branch target is outside the reachable range")
	ErrorMissingSdaBase      = errors.New("@sda/@sda2 modifier requires SetSdaBases")
	ErrorUnknownModifier     = errors.New("unknown immediate modifier")
	ErrorLayoutDetection     = errors.New("could not detect an unambiguous ROM end")
	ErrorMissingArenaPatcher = errors.New("new section required but no arena patcher configured")
	ErrorMissingBaseAddress  = errors.New("base address must be set for this operation")
	ErrorUnsupportedCode     = errors.New("code list entry cannot be baked into a DOL")
	ErrorToolchain           = errors.New("toolchain invocation failed")
	ErrorNotBuilt            = errors.New("project has not been built yet")
	ErrorUnknownEncoding     = errors.New("unknown string encoding")
)
