package bridge

import (
	"math"
	"unicode/utf8"

	"github.com/wippyai/passing-data/engine"
	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/runtime"
)

// Pointer is a guest-relative offset stamped with the instance generation
// it was obtained at.
type Pointer struct {
	Offset     uint32
	Generation uint64
}

// View is bounds-checked access to an instance's linear memory, valid only
// until the next guest call.
type View struct {
	inst       *runtime.Instance
	mem        *engine.WazeroMemory
	name       string
	generation uint64
}

// MemoryOf returns a fresh view of the instance's default memory export.
func MemoryOf(inst *runtime.Instance) (*View, error) {
	return MemoryNamed(inst, DefaultMemory)
}

// MemoryNamed returns a fresh view of the memory exported as name.
func MemoryNamed(inst *runtime.Instance, name string) (*View, error) {
	if inst == nil {
		return nil, errors.NotInitialized(errors.PhaseMemory, "instance")
	}
	mem := inst.Memory(name)
	if mem == nil {
		return nil, errors.ExportNotFound(name)
	}
	return &View{
		inst:       inst,
		mem:        mem,
		name:       name,
		generation: inst.Generation(),
	}, nil
}

// Generation returns the instance generation the view was obtained at.
func (v *View) Generation() uint64 {
	return v.generation
}

// Size returns the current memory size in bytes.
func (v *View) Size() uint32 {
	return v.mem.Size()
}

func (v *View) check() error {
	if current := v.inst.Generation(); current != v.generation {
		return errors.StaleHandle("memory view "+v.name, v.generation, current)
	}
	return nil
}

func (v *View) checkPointer(p Pointer) error {
	if err := v.check(); err != nil {
		return err
	}
	if p.Generation != v.generation {
		return errors.StaleHandle("buffer pointer", p.Generation, v.generation)
	}
	return nil
}

func (v *View) bounds(offset uint32, length uint64) error {
	size := v.mem.Size()
	if uint64(offset)+length > uint64(size) {
		if length > math.MaxUint32 {
			length = math.MaxUint32
		}
		return errors.OutOfBounds(offset, uint32(length), size)
	}
	return nil
}

// Write copies data into memory at offset. Nothing is written when the
// range does not fit.
func (v *View) Write(offset uint32, data []byte) error {
	if err := v.check(); err != nil {
		return err
	}
	if err := v.bounds(offset, uint64(len(data))); err != nil {
		return err
	}
	return v.mem.Write(offset, data)
}

// Read returns length bytes at offset. The slice aliases guest memory and
// must not be kept past the next guest call.
func (v *View) Read(offset, length uint32) ([]byte, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	if err := v.bounds(offset, uint64(length)); err != nil {
		return nil, err
	}
	return v.mem.Read(offset, length)
}

// ReadUTF8 reads length bytes at offset and returns them as a string.
// Malformed UTF-8 is an error, never replaced.
func (v *View) ReadUTF8(offset, length uint32) (string, error) {
	data, err := v.Read(offset, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		bad := firstInvalid(data)
		return "", errors.InvalidUTF8(offset+uint32(bad), data[bad:])
	}
	return string(data), nil
}

func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// WriteAt is Write at a pointer, which must come from the view's generation.
func (v *View) WriteAt(p Pointer, data []byte) error {
	if err := v.checkPointer(p); err != nil {
		return err
	}
	return v.Write(p.Offset, data)
}

// ReadAt is Read at a pointer, which must come from the view's generation.
func (v *View) ReadAt(p Pointer, length uint32) ([]byte, error) {
	if err := v.checkPointer(p); err != nil {
		return nil, err
	}
	return v.Read(p.Offset, length)
}

// ReadUTF8At is ReadUTF8 at a pointer, which must come from the view's
// generation.
func (v *View) ReadUTF8At(p Pointer, length uint32) (string, error) {
	if err := v.checkPointer(p); err != nil {
		return "", err
	}
	return v.ReadUTF8(p.Offset, length)
}
