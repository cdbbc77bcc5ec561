package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Save state format constants
const (
	vdpStateVersion    = 1
	vdpStateMagic      = "eSaturnVDPSt"
	vdpStateHeaderSize = 18 // magic(12) + version(2) + dataCRC(4)
)

// State validation errors
var (
	ErrBadStateMagic   = errors.New("vdp: not a VDP save state")
	ErrBadStateVersion = errors.New("vdp: unsupported save state version")
	ErrBadStateCRC     = errors.New("vdp: save state is corrupted")
	ErrShortState      = errors.New("vdp: save state is truncated")
)

// stateWriter appends little-endian fields to a buffer.
type stateWriter struct {
	data []byte
}

func (w *stateWriter) bytes(b []byte) {
	w.data = append(w.data, b...)
}

func (w *stateWriter) u8(v uint8) {
	w.data = append(w.data, v)
}

func (w *stateWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *stateWriter) u16(v uint16) {
	w.data = binary.LittleEndian.AppendUint16(w.data, v)
}

func (w *stateWriter) u32(v uint32) {
	w.data = binary.LittleEndian.AppendUint32(w.data, v)
}

func (w *stateWriter) u64(v uint64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, v)
}

// stateReader consumes little-endian fields from a buffer.
type stateReader struct {
	data []byte
	pos  int
	err  error
}

func (r *stateReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = ErrShortState
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *stateReader) bytes(dst []byte) {
	b := r.take(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

func (r *stateReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *stateReader) bool() bool {
	return r.u8() != 0
}

func (r *stateReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *stateReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *stateReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// SaveState serializes the full VDP state. The worker threads are driven to
// the pre-save barrier first so every queued write has landed.
func (v *VDP) SaveState() []byte {
	v.renderer.syncWorkers()

	var w stateWriter
	w.bytes(make([]byte, vdpStateHeaderSize))

	// Memories
	w.bytes(v.mem.vram1)
	w.bytes(v.mem.vram2)
	w.bytes(v.mem.cram)
	w.bytes(v.renderer.spriteFB[0])
	w.bytes(v.renderer.spriteFB[1])

	// VDP1 registers and command engine state
	r1 := &v.regs1
	w.bool(r1.pixel8Bits)
	w.bool(r1.fbRotEnable)
	w.bool(r1.hdtvEnable)
	w.bool(r1.vblankErase)
	w.bool(r1.fbSwapTrigger)
	w.bool(r1.fbSwapMode)
	w.bool(r1.dblInterlaceDraw)
	w.bool(r1.dblInterlaceDrawLine)
	w.bool(r1.evenOddCoordSelect)
	w.bool(r1.fbParamsChanged)
	w.u8(r1.plotTrigger)
	w.u16(r1.eraseWriteValue)
	w.u16(r1.eraseX1)
	w.u16(r1.eraseY1)
	w.u16(r1.eraseX3)
	w.u16(r1.eraseY3)
	w.u16(r1.latchedEraseValue)
	w.u16(r1.latchedEraseX1)
	w.u16(r1.latchedEraseY1)
	w.u16(r1.latchedEraseX3)
	w.u16(r1.latchedEraseY3)
	w.u8(r1.displayFB)
	w.bool(r1.currFrameEnded)
	w.bool(r1.prevFrameEnded)
	w.u32(r1.currCommandAddress)
	w.u32(r1.prevCommandAddress)
	w.u32(r1.returnAddress)

	w.bool(v.vdp1.drawing)
	w.u64(v.vdp1.spilloverCycles)
	w.u64(v.vdp1.timingPenaltyCycles)
	w.bool(v.vdp1.doVBlankErase)
	w.bool(v.vdp1.doDisplayErase)

	// VDP2 register file: the raw image replays through the decoder on
	// load, rebuilding all derived state
	for _, raw := range v.regs2.raw {
		w.u16(raw)
	}

	// VDP2 state not reconstructible from the register file
	w.bool(v.regs2.displayEnableLatch)
	w.u8(uint8(v.regs2.latchedInterlaceMode))
	w.bool(v.regs2.pal)
	w.bool(v.regs2.vblank)
	w.bool(v.regs2.hblank)
	w.bool(v.regs2.odd)
	w.bool(v.regs2.exltfg)
	w.u32(v.regs2.vcnt)
	w.u32(v.regs2.hcnt)
	w.u32(v.regs2.vcntSkip)

	// Phase scheduler
	w.u8(uint8(v.hphase))
	w.u8(uint8(v.vphase))
	w.u32(v.vTimingField)

	// Header
	copy(w.data[:12], vdpStateMagic)
	binary.LittleEndian.PutUint16(w.data[12:14], vdpStateVersion)
	crc := crc32.ChecksumIEEE(w.data[vdpStateHeaderSize:])
	binary.LittleEndian.PutUint32(w.data[14:18], crc)

	return w.data
}

// ValidateState checks a state image's header without applying it.
func (v *VDP) ValidateState(data []byte) error {
	if len(data) < vdpStateHeaderSize {
		return ErrShortState
	}
	if string(data[:12]) != vdpStateMagic {
		return ErrBadStateMagic
	}
	version := binary.LittleEndian.Uint16(data[12:14])
	if version != vdpStateVersion {
		return fmt.Errorf("%w: %d", ErrBadStateVersion, version)
	}
	crc := binary.LittleEndian.Uint32(data[14:18])
	if crc32.ChecksumIEEE(data[vdpStateHeaderSize:]) != crc {
		return ErrBadStateCRC
	}
	return nil
}

// LoadState applies a state image. After deserializing, the workers run to
// the post-load barrier, which re-mirrors the memories into the renderer
// shadows and rebuilds the CRAM cache and derived BG state.
func (v *VDP) LoadState(data []byte) error {
	if err := v.ValidateState(data); err != nil {
		return err
	}

	r := stateReader{data: data, pos: vdpStateHeaderSize}

	r.bytes(v.mem.vram1)
	r.bytes(v.mem.vram2)
	r.bytes(v.mem.cram)
	r.bytes(v.renderer.spriteFB[0])
	r.bytes(v.renderer.spriteFB[1])

	r1 := &v.regs1
	r1.pixel8Bits = r.bool()
	r1.fbRotEnable = r.bool()
	r1.hdtvEnable = r.bool()
	r1.vblankErase = r.bool()
	r1.fbSwapTrigger = r.bool()
	r1.fbSwapMode = r.bool()
	r1.dblInterlaceDraw = r.bool()
	r1.dblInterlaceDrawLine = r.bool()
	r1.evenOddCoordSelect = r.bool()
	r1.fbParamsChanged = r.bool()
	r1.plotTrigger = r.u8()
	r1.eraseWriteValue = r.u16()
	r1.eraseX1 = r.u16()
	r1.eraseY1 = r.u16()
	r1.eraseX3 = r.u16()
	r1.eraseY3 = r.u16()
	r1.latchedEraseValue = r.u16()
	r1.latchedEraseX1 = r.u16()
	r1.latchedEraseY1 = r.u16()
	r1.latchedEraseX3 = r.u16()
	r1.latchedEraseY3 = r.u16()
	r1.displayFB = r.u8()
	r1.currFrameEnded = r.bool()
	r1.prevFrameEnded = r.bool()
	r1.currCommandAddress = r.u32()
	r1.prevCommandAddress = r.u32()
	r1.returnAddress = r.u32()

	v.vdp1.drawing = r.bool()
	v.vdp1.spilloverCycles = r.u64()
	v.vdp1.timingPenaltyCycles = r.u64()
	v.vdp1.doVBlankErase = r.bool()
	v.vdp1.doDisplayErase = r.bool()

	// Replay the register file through the decoder
	var raws [0x90]uint16
	for i := range raws {
		raws[i] = r.u16()
	}
	v.regs2.Reset(v.cfg.Region == RegionPAL)
	for i, raw := range raws {
		v.regs2.Write16(uint32(i)<<1, raw)
	}

	v.regs2.displayEnableLatch = r.bool()
	v.regs2.latchedInterlaceMode = InterlaceMode(r.u8())
	v.regs2.pal = r.bool()
	v.regs2.vblank = r.bool()
	v.regs2.hblank = r.bool()
	v.regs2.odd = r.bool()
	v.regs2.exltfg = r.bool()
	v.regs2.vcnt = r.u32()
	v.regs2.hcnt = r.u32()
	v.regs2.vcntSkip = r.u32()

	v.hphase = int(r.u8())
	v.vphase = int(r.u8())
	v.vTimingField = r.u32()

	if r.err != nil {
		return r.err
	}

	// Rebuild everything derived
	v.mem.cramCacheRebuild()
	v.regs2.tvmdDirty = true
	v.updateResolution()
	v.renderer.postReset(&v.mem, &v.regs1, &v.regs2, false)
	v.renderer.displayFB = v.regs1.displayFB

	return nil
}
