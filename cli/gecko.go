package main

import (
	"os"

	"github.com/mintwald/dolkit/gecko"
)

type GctToTextCmd struct {
	Input  string `arg:"" name:"input" help:"GCT file to read."`
	Output string `arg:"" name:"output" help:"Text file to write."`
}

func (l *GctToTextCmd) Run(c *Context) error {
	raw, err := os.ReadFile(l.Input)
	if err != nil {
		return err
	}

	t, err := gecko.ParseGCT(raw, l.Input)
	if err != nil {
		return err
	}

	out, err := os.Create(l.Output)
	if err != nil {
		return err
	}
	defer out.Close()
	return t.WriteText(out)
}

type TextToGctCmd struct {
	Input  string `arg:"" name:"input" help:"Text file to read."`
	Output string `arg:"" name:"output" help:"GCT file to write."`
}

func (l *TextToGctCmd) Run(c *Context) error {
	in, err := os.Open(l.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	t, err := gecko.ParseText(in)
	if err != nil {
		return err
	}

	return os.WriteFile(l.Output, t.Bytes(), 0644)
}
