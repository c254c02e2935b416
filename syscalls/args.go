package syscalls

import (
	"fmt"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/memory"
	"github.com/pkg/errors"
)

// ArgKind says how a raw stack word is to be interpreted.
type ArgKind int

const (
	IntArg ArgKind = iota
	UnsignedArg
	PointerArg
	StringArg
)

func (k ArgKind) String() string {
	switch k {
	case IntArg:
		return "int"
	case UnsignedArg:
		return "unsigned"
	case PointerArg:
		return "pointer"
	case StringArg:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Arg is one decoded argument. String arguments have already been copied
// in from user memory; a null string pointer decodes with Null set.
type Arg struct {
	Kind ArgKind
	Word uint32
	Str  string
	Null bool
}

func (a Arg) Int() int32 {
	return int32(a.Word)
}

func (a Arg) Uint() uint32 {
	return a.Word
}

func (a Arg) Ptr() uint32 {
	return a.Word
}

func (a Arg) String() string {
	switch a.Kind {
	case StringArg:
		if a.Null {
			return "<null>"
		}
		return fmt.Sprintf("%q", a.Str)
	case PointerArg:
		return fmt.Sprintf("%#x", a.Word)
	case UnsignedArg:
		return fmt.Sprintf("%d", a.Word)
	default:
		return fmt.Sprintf("%d", int32(a.Word))
	}
}

type Args []Arg

// Decode interprets words according to kinds. A string that is not fully
// inside mapped memory, or that is longer than abi.MaxCommandLine, is a
// fault.
func Decode(mem *memory.VirtualMemory, kinds []ArgKind, words []uint32) (Args, error) {
	if len(kinds) != len(words) {
		return nil, errors.Errorf("have %d words for %d arguments", len(words), len(kinds))
	}

	args := make(Args, len(kinds))

	for i, kind := range kinds {
		arg := Arg{Kind: kind, Word: words[i]}

		switch kind {
		case PointerArg:
			arg.Null = arg.Word == 0
		case StringArg:
			if arg.Word == 0 {
				arg.Null = true
				break
			}

			str, err := mem.ReadCString(arg.Word, abi.MaxCommandLine)
			if err != nil {
				return nil, errors.Wrapf(err, "argument %d", i)
			}

			arg.Str = string(str)
		}

		args[i] = arg
	}

	return args, nil
}
