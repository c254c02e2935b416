package memory

import (
	"bytes"

	"github.com/pkg/errors"
)

const PageSize = 4096

const (
	// UserStackTop is one past the highest user address.
	UserStackTop uint32 = 0xC0000000

	// UserDataBase is where the data region of a user process starts.
	UserDataBase uint32 = 0x08048000
)

type Region struct {
	Start, Size uint32

	linear []byte
	brk    uint32
}

func (reg *Region) Contains(x uint32) bool {
	if x < reg.Start {
		return false
	}

	if x-reg.Start >= reg.Size {
		return false
	}

	return true
}

// End is one past the last address in the region.
func (reg *Region) End() uint64 {
	return uint64(reg.Start) + uint64(reg.Size)
}

func pageRound(sz uint32) uint32 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

func (reg *Region) Project(addr, sz uint32) []byte {
	offset := addr - reg.Start

	if len(reg.linear) < int(offset+sz) {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz]
}

var ErrOutOfMemory = errors.New("region exhausted")

// Alloc hands out sz bytes from the region, word aligned. It is a bump
// allocator; Reset gives everything back.
func (reg *Region) Alloc(sz uint32) (uint32, error) {
	aligned := (sz + 3) &^ 3
	if uint64(reg.brk)+uint64(aligned) > uint64(reg.Size) {
		return 0, errors.Wrapf(ErrOutOfMemory, "alloc of %d bytes, %d free", sz, reg.Size-reg.brk)
	}

	addr := reg.Start + reg.brk
	reg.brk += aligned

	return addr, nil
}

func (reg *Region) Reset() {
	reg.brk = 0
}

type VirtualMemory struct {
	regions []*Region

	size uint32
}

func NewVirtualMemory() *VirtualMemory {
	return &VirtualMemory{}
}

func (vm *VirtualMemory) Size() int {
	return int(vm.size)
}

func (vm *VirtualMemory) FindRegion(addr uint32) (*Region, bool) {
	for _, reg := range vm.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access via projection")
	ErrBadRegionRequest    = errors.New("bad region request")
	ErrStringTooLong       = errors.New("string exceeds limit")
)

// NewRegion maps [addr, addr+size). Page zero is never mappable so that a
// null pointer always faults.
func (vm *VirtualMemory) NewRegion(addr, size uint32) (*Region, error) {
	if size == 0 || addr < PageSize || uint64(addr)+uint64(size) > uint64(UserStackTop) {
		return nil, errors.Wrapf(ErrBadRegionRequest, "addr=%x size=%x", addr, size)
	}

	for _, reg := range vm.regions {
		if uint64(addr) < reg.End() && uint64(addr)+uint64(size) > uint64(reg.Start) {
			return nil, errors.Wrapf(ErrBadRegionRequest, "addr=%x size=%x overlaps %x", addr, size, reg.Start)
		}
	}

	reg := &Region{
		Start: addr,
		Size:  size,
	}

	vm.regions = append(vm.regions, reg)

	vm.size += size

	return reg, nil
}

// Validate checks that [addr, addr+sz) lies entirely inside one mapped
// region. It must be called before any user pointer is dereferenced.
func (vm *VirtualMemory) Validate(addr, sz uint32) error {
	if sz == 0 {
		return nil
	}

	reg, ok := vm.FindRegion(addr)
	if !ok {
		return errors.Wrapf(ErrInvalidMemoryAccess, "unmapped address=%x", addr)
	}

	if uint64(addr)+uint64(sz) > reg.End() {
		return errors.Wrapf(ErrInvalidMemoryAccess, "range address=%x, size=%x leaves region", addr, sz)
	}

	return nil
}

func (vm *VirtualMemory) Project(addr, sz uint32) ([]byte, error) {
	err := vm.Validate(addr, sz)
	if err != nil {
		return nil, err
	}

	if sz == 0 {
		return nil, nil
	}

	reg, _ := vm.FindRegion(addr)

	return reg.Project(addr, sz), nil
}

func (vm *VirtualMemory) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 || off > int64(^uint32(0)) {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "offset=%x", off)
	}

	mem, err := vm.Project(uint32(off), uint32(len(b)))
	if err != nil {
		return 0, err
	}

	return copy(b, mem), nil
}

func (vm *VirtualMemory) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 || off > int64(^uint32(0)) {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "offset=%x", off)
	}

	mem, err := vm.Project(uint32(off), uint32(len(b)))
	if err != nil {
		return 0, err
	}

	return copy(mem, b), nil
}

// ReadCString reads a NUL terminated string starting at ptr. Every byte is
// validated before it is read, so a string running off the end of a region
// faults rather than reading past it.
func (vm *VirtualMemory) ReadCString(ptr uint32, max int) ([]byte, error) {
	var buf bytes.Buffer

	var t [1]byte

	off := int64(ptr)

	for {
		_, err := vm.ReadAt(t[:], off)
		if err != nil {
			return nil, err
		}

		if t[0] == 0 {
			break
		}

		if buf.Len() >= max {
			return nil, errors.Wrapf(ErrStringTooLong, "address=%x, limit=%d", ptr, max)
		}

		buf.WriteByte(t[0])
		off += 1
	}

	return buf.Bytes(), nil
}
