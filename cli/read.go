package main

import (
	"errors"
	"fmt"
	"os"
)

type ReadCmd struct {
	Filename string `optional:"" help:"File to write dump to."`
	Diff     string `optional:"" help:"Second DOL image; bytes differing from it are marked."`

	Image  string `arg:"" name:"image" help:"DOL image to read."`
	Addr   int    `arg:"" name:"addr" help:"Virtual address to read from." type:"hex"`
	Amount int    `arg:"" name:"amount" help:"Number of bytes to read." optional:"" default:"256" type:"int"`
}

func (l *ReadCmd) Run(c *Context) error {
	f, err := loadDOL(l.Image)
	if err != nil {
		return err
	}

	buf := make([]byte, l.Amount)
	n, err := f.Access(false, uint32(l.Addr), buf)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	buf = buf[:n]
	if len(buf) == 0 {
		return errors.New("0 bytes returned")
	}

	if l.Filename != "" {
		return os.WriteFile(l.Filename, buf, 0644)
	}

	var mark []bool
	if l.Diff != "" {
		other, err := loadDOL(l.Diff)
		if err != nil {
			return err
		}

		otherBuf := make([]byte, len(buf))
		if _, err := other.Access(false, uint32(l.Addr), otherBuf); err != nil {
			return fmt.Errorf("diff read error: %w", err)
		}

		mark = make([]bool, len(buf))
		for i := range buf {
			mark[i] = buf[i] != otherBuf[i]
		}
	}

	fmt.Println(hexdump(l.Addr, buf, mark))
	return nil
}
