package syscalls

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/memory"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// Frame is the register state saved when user code traps into the kernel.
// ESP points at the syscall number, EAX carries the result back.
type Frame struct {
	ESP uint32
	EAX uint32
}

type stackWord struct {
	Value uint32
}

// StackArgs reads consecutive words upward from the trapping stack
// pointer. Each word is validated before it is read.
type StackArgs struct {
	mem    *memory.VirtualMemory
	cursor uint32
}

func NewStackArgs(mem *memory.VirtualMemory, esp uint32) *StackArgs {
	return &StackArgs{mem: mem, cursor: esp}
}

// Next pops n words.
func (s *StackArgs) Next(n int) ([]uint32, error) {
	words := make([]uint32, n)

	for i := range words {
		addr := s.cursor

		err := s.mem.Validate(addr, abi.WordSize)
		if err != nil {
			return nil, errors.Wrapf(err, "stack word %d", i)
		}

		var w stackWord

		r := io.NewSectionReader(s.mem, int64(addr), abi.WordSize)

		err = struc.UnpackWithOrder(r, &w, binary.LittleEndian)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding stack word at %x", addr)
		}

		words[i] = w.Value
		s.cursor += abi.WordSize
	}

	return words, nil
}

// Cursor is the address of the next unread word.
func (s *StackArgs) Cursor() uint32 {
	return s.cursor
}

// EncodeWords lays words out the way StackArgs expects to find them.
func EncodeWords(words ...uint32) ([]byte, error) {
	var buf bytes.Buffer

	for _, w := range words {
		err := struc.PackWithOrder(&buf, &stackWord{Value: w}, binary.LittleEndian)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
