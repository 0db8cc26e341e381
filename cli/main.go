package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

type Context struct {
	LogLevel int
}

var CLI struct {
	LogLevel int `optional:"" help:"Higher values give more output."`

	Info InfoCmd `cmd:"" help:"Show DOL header and section layout."`
	Read ReadCmd `cmd:"" help:"Read and dump DOL memory by virtual address."`

	GctToText GctToTextCmd `cmd:"" name:"gct2txt" help:"Convert a GCT code list to Dolphin text format."`
	TextToGct TextToGctCmd `cmd:"" name:"txt2gct" help:"Convert a Dolphin text code list to a GCT."`
}

func main() {
	k, err := kong.New(&CLI,
		kong.NamedMapper("int", baseMapper{base: 10}),
		kong.NamedMapper("hex", baseMapper{base: 16}))
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx, err := k.Parse(os.Args[1:])
	if err != nil {
		fmt.Println(err)
		return
	}

	err = ctx.Run(&Context{LogLevel: CLI.LogLevel})
	ctx.FatalIfErrorf(err)
}
