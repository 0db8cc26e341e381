// Package dol reads and writes the GameCube/Wii DOL executable container:
// a fixed table of text and data sections with absolute load addresses, a
// bss range and an entry point.
package dol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	ErrorSectionsFull = errors.New("no free section slot in the DOL header")
	ErrorNotMapped    = errors.New("address is not mapped by any section")
)

const (
	MaxTextSections = 7
	MaxDataSections = 11
	HeaderSize      = 0x100

	// DOL sections must stay 32-byte aligned for OSResetSystem to work.
	SectionAlignment = 32
)

type SectionKind int

const (
	Text SectionKind = iota
	Data
)

func (k SectionKind) String() string {
	if k == Text {
		return "text"
	}
	return "data"
}

type Section struct {
	Kind    SectionKind
	Address uint32
	Data    []byte
}

func (s *Section) Size() uint32 {
	return uint32(len(s.Data))
}

// End returns the first address past the section.
func (s *Section) End() uint32 {
	return s.Address + uint32(len(s.Data))
}

func (s *Section) contains(addr uint32) bool {
	return addr >= s.Address && addr < s.End()
}

// File is a fully loaded DOL image. It is exclusively owned by a single
// build operation and mutated in place.
type File struct {
	Text [](*Section)
	Data [](*Section)

	BssAddress uint32
	BssSize    uint32
	EntryPoint uint32
}

// Parse loads a DOL image from raw bytes.
func Parse(raw []byte) (*File, error) {
	if len(raw) < HeaderSize {
		return nil, errors.New("file too short (hdr)")
	}

	field := func(i int) uint32 {
		return binary.BigEndian.Uint32(raw[4*i:])
	}

	f := &File{
		BssAddress: field(0x36),
		BssSize:    field(0x37),
		EntryPoint: field(0x38),
	}

	total := MaxTextSections + MaxDataSections
	for i := 0; i < total; i++ {
		offset := field(i)
		address := field(total + i)
		size := field(2*total + i)
		if size == 0 {
			continue
		}
		if int64(offset)+int64(size) > int64(len(raw)) {
			return nil, fmt.Errorf("section %d extends past end of file", i)
		}

		s := &Section{
			Kind:    Data,
			Address: address,
			Data:    append([]byte(nil), raw[offset:offset+size]...),
		}
		if i < MaxTextSections {
			s.Kind = Text
		}
		f.append(s)
	}

	return f, nil
}

// Read loads a DOL image from r.
func Read(r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func (f *File) append(s *Section) {
	if s.Kind == Text {
		f.Text = append(f.Text, s)
	} else {
		f.Data = append(f.Data, s)
	}
}

// AppendSection adds a new section holding data at address. It prefers a
// text slot and falls back to a data slot, since the running program does
// not care which table a section was loaded from.
func (f *File) AppendSection(address uint32, data []byte) (*Section, error) {
	s := &Section{Address: address, Data: data}

	switch {
	case len(f.Text) < MaxTextSections:
		s.Kind = Text
	case len(f.Data) < MaxDataSections:
		s.Kind = Data
	default:
		return nil, ErrorSectionsFull
	}

	f.append(s)
	return s, nil
}

// Sections returns all sections sorted by load address.
func (f *File) Sections() []*Section {
	all := make([]*Section, 0, len(f.Text)+len(f.Data))
	all = append(all, f.Text...)
	all = append(all, f.Data...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].Address < all[j].Address
	})
	return all
}

func (f *File) section(addr uint32) *Section {
	for _, s := range f.Text {
		if s.contains(addr) {
			return s
		}
	}
	for _, s := range f.Data {
		if s.contains(addr) {
			return s
		}
	}
	return nil
}

// IsMapped reports whether addr falls inside a loaded section.
func (f *File) IsMapped(addr uint32) bool {
	return f.section(addr) != nil
}

// Access reads or writes buf at a virtual address, staying within the
// section that maps it. It returns the number of bytes transferred; a short
// count means the range ran off the end of the section.
func (f *File) Access(write bool, addr uint32, buf []byte) (int, error) {
	s := f.section(addr)
	if s == nil {
		return 0, fmt.Errorf("%w: %08X", ErrorNotMapped, addr)
	}

	window := s.Data[addr-s.Address:]
	if write {
		return copy(window, buf), nil
	}
	return copy(buf, window), nil
}

func (f *File) WriteUint32(addr uint32, value uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return f.writeFull(addr, buf[:])
}

func (f *File) WriteUint16(addr uint32, value uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	return f.writeFull(addr, buf[:])
}

func (f *File) ReadUint32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := f.readFull(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (f *File) ReadUint16(addr uint32) (uint16, error) {
	var buf [2]byte
	if err := f.readFull(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (f *File) readFull(addr uint32, buf []byte) error {
	n, err := f.Access(false, addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("read of %d bytes at %08X crosses a section boundary", len(buf), addr)
	}
	return nil
}

func (f *File) writeFull(addr uint32, buf []byte) error {
	n, err := f.Access(true, addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("write of %d bytes at %08X crosses a section boundary", len(buf), addr)
	}
	return nil
}

// WriteBytes writes buf at addr, failing if the range is not fully mapped.
func (f *File) WriteBytes(addr uint32, buf []byte) error {
	return f.writeFull(addr, buf)
}

// Save serializes the image. Section payloads are placed after the header
// in load-address order, keeping file offsets 32-byte aligned.
func (f *File) Save(w io.Writer) error {
	if len(f.Text) > MaxTextSections || len(f.Data) > MaxDataSections {
		return ErrorSectionsFull
	}

	header := make([]byte, HeaderSize)
	field := func(i int, v uint32) {
		binary.BigEndian.PutUint32(header[4*i:], v)
	}

	total := MaxTextSections + MaxDataSections
	offset := uint32(HeaderSize)
	var payload []byte

	place := func(i int, s *Section) {
		for offset%SectionAlignment != 0 {
			offset++
			payload = append(payload, 0)
		}
		field(i, offset)
		field(total+i, s.Address)
		field(2*total+i, s.Size())
		payload = append(payload, s.Data...)
		offset += s.Size()
	}

	for i, s := range f.Text {
		place(i, s)
	}
	for i, s := range f.Data {
		place(MaxTextSections+i, s)
	}

	field(0x36, f.BssAddress)
	field(0x37, f.BssSize)
	field(0x38, f.EntryPoint)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
