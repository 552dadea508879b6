package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// PageSize is the size of one memory page in bytes.
const PageSize = 4096

// Permission is the read/write/execute triple of a byte.
type Permission struct {
	Read    bool
	Write   bool
	Execute bool
}

// Common permission triples.
var (
	PermNone      = Permission{}
	PermRead      = Permission{Read: true}
	PermReadWrite = Permission{Read: true, Write: true}
	PermExecute   = Permission{Execute: true}
)

func (p Permission) String() string {
	b := []byte("---")
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	return string(b)
}

// Page is one PageSize block of guest memory with per-byte permission and
// initialization bits.
type Page struct {
	data        [PageSize]byte
	readable    *bitset.BitSet
	writable    *bitset.BitSet
	executable  *bitset.BitSet
	initialized *bitset.BitSet
}

func newPage() *Page {
	return &Page{
		readable:    bitset.New(PageSize),
		writable:    bitset.New(PageSize),
		executable:  bitset.New(PageSize),
		initialized: bitset.New(PageSize),
	}
}

// Memory is a sparse, lazily paged 64-bit address space.
type Memory struct {
	pages map[uint64]*Page

	uninitializedReads uint64
}

// NewMemory creates an empty address space. No byte has any permission.
func NewMemory() *Memory {
	return &Memory{
		pages: make(map[uint64]*Page),
	}
}

func splitAddr(addr uint64) (index uint64, offset uint) {
	return addr / PageSize, uint(addr % PageSize)
}

// page returns the page holding addr, creating it if create is set.
func (m *Memory) page(addr uint64, create bool) (*Page, uint) {
	index, offset := splitAddr(addr)
	p, ok := m.pages[index]
	if !ok && create {
		p = newPage()
		m.pages[index] = p
	}
	return p, offset
}

// PageCount returns the number of pages allocated so far.
func (m *Memory) PageCount() int {
	return len(m.pages)
}

// UninitializedReads returns how many bytes were read before ever being
// written.
func (m *Memory) UninitializedReads() uint64 {
	return m.uninitializedReads
}

func checkWidth(width int) error {
	if width < 1 || width > 8 {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	return nil
}

// SetPermission sets all three permission bits of every byte in
// [addr, addr+size). Earlier permissions are overwritten, not merged.
func (m *Memory) SetPermission(addr, size uint64, perm Permission) {
	for size > 0 {
		p, off := m.page(addr, true)
		n := min(size, uint64(PageSize-off))
		for i := off; i < off+uint(n); i++ {
			p.readable.SetTo(i, perm.Read)
			p.writable.SetTo(i, perm.Write)
			p.executable.SetTo(i, perm.Execute)
		}
		addr += n
		size -= n
	}
}

// GetPermission returns the permission of one byte.
func (m *Memory) GetPermission(addr uint64) Permission {
	p, off := m.page(addr, false)
	if p == nil {
		return PermNone
	}
	return Permission{
		Read:    p.readable.Test(off),
		Write:   p.writable.Test(off),
		Execute: p.executable.Test(off),
	}
}

// IsInitialized reports whether a byte has ever been written.
func (m *Memory) IsInitialized(addr uint64) bool {
	p, off := m.page(addr, false)
	return p != nil && p.initialized.Test(off)
}

// Write stores width bytes of value little-endian at addr after checking
// write permission on every byte.
func (m *Memory) Write(addr uint64, width int, value uint64) error {
	if err := checkWidth(width); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.WriteBytes(addr, buf[:width])
}

// WriteUnchecked stores like Write without checking permissions.
func (m *Memory) WriteUnchecked(addr uint64, width int, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	m.WriteBytesUnchecked(addr, buf[:min(max(width, 0), 8)])
}

// Read loads width bytes little-endian from addr after checking read
// permission on every byte. Uninitialized bytes are reported but read as
// stored.
func (m *Memory) Read(addr uint64, width int) (uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	b, err := m.ReadBytes(addr, uint64(width))
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUnchecked loads like Read without checking permissions.
func (m *Memory) ReadUnchecked(addr uint64, width int) uint64 {
	var buf [8]byte
	for i := 0; i < min(max(width, 0), 8); i++ {
		buf[i] = m.loadByte(addr + uint64(i))
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// WriteBytes stores data at addr, checking write permission first. Nothing
// is written if any byte lacks permission.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	if err := m.CheckWrite(addr, uint64(len(data))); err != nil {
		return err
	}
	m.WriteBytesUnchecked(addr, data)
	return nil
}

// CheckWrite returns an access violation for the first byte of
// [addr, addr+n) without write permission.
func (m *Memory) CheckWrite(addr, n uint64) error {
	for i := uint64(0); i < n; i++ {
		a := addr + i
		if !m.GetPermission(a).Write {
			return &AccessViolationError{Address: a, Access: AccessWrite}
		}
	}
	return nil
}

// WriteBytesUnchecked stores data at addr without checking permissions.
func (m *Memory) WriteBytesUnchecked(addr uint64, data []byte) {
	for i, b := range data {
		p, off := m.page(addr+uint64(i), true)
		p.data[off] = b
		p.initialized.Set(off)
	}
}

// ReadBytes loads n bytes from addr, checking read permission.
func (m *Memory) ReadBytes(addr, n uint64) ([]byte, error) {
	for i := uint64(0); i < n; i++ {
		a := addr + i
		if !m.GetPermission(a).Read {
			return nil, &AccessViolationError{Address: a, Access: AccessRead}
		}
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = m.loadByte(addr + uint64(i))
	}
	return out, nil
}

// ReadCString reads a NUL-terminated string of at most limit bytes,
// checking read permission.
func (m *Memory) ReadCString(addr uint64, limit int) (string, error) {
	var out []byte
	for i := 0; i < limit; i++ {
		a := addr + uint64(i)
		if !m.GetPermission(a).Read {
			return "", &AccessViolationError{Address: a, Access: AccessRead}
		}
		b := m.loadByte(a)
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", fmt.Errorf("string at 0x%X longer than %d bytes", addr, limit)
}

func (m *Memory) loadByte(addr uint64) byte {
	p, off := m.page(addr, false)
	if p == nil || !p.initialized.Test(off) {
		m.uninitializedReads++
		log.Warningf("read of uninitialized memory at 0x%X", addr)
	}
	if p == nil {
		return 0
	}
	return p.data[off]
}
