package main

import (
	"fmt"
	"os"

	"github.com/mintwald/dolkit/dol"
)

type InfoCmd struct {
	Filename string `arg:"" name:"filename" help:"DOL image to inspect."`
}

func loadDOL(path string) (*dol.File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dol.Parse(raw)
}

func (l *InfoCmd) Run(c *Context) error {
	f, err := loadDOL(l.Filename)
	if err != nil {
		return err
	}

	fmt.Printf("Entry point: %08X\n", f.EntryPoint)
	fmt.Printf("BSS:         %08X-%08X (%d bytes)\n", f.BssAddress, f.BssAddress+f.BssSize, f.BssSize)

	fmt.Printf("\nSection | Address  | End      |     Size\n")
	for _, s := range f.Sections() {
		fmt.Printf("%-7s | %08X | %08X | %8d\n", s.Kind, s.Address, s.End(), s.Size())
	}
	return nil
}
