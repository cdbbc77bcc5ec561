package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Memory sizes
const (
	VDP1VRAMSize   = 0x80000 // 512 KiB command list + texture data
	VDP1FBSize     = 0x40000 // 256 KiB per sprite framebuffer
	VDP2VRAMSize   = 0x80000 // 512 KiB in four banks A0/A1/B0/B1
	CRAMSize       = 0x1000  // 4 KiB color RAM
	CRAMCacheWords = 0x800   // 2048 converted entries
)

// Display limits
const (
	MaxHRes = 704
	MaxVRes = 512 // double-density interlace doubles 256
)

// kVDP1NoReturn marks that no CALL return address is pending.
const kVDP1NoReturn = 0xFFFFFFFF

// Scheduler is the host scheduler the VDP registers its phase event with.
// The handler returns the number of cycles until it wants to run again; the
// scheduler must keep invoking it on that cadence.
type Scheduler interface {
	RegisterEvent(name string, handler func() uint64)
}

// Callbacks are the host hooks the VDP invokes. Any field may be nil.
type Callbacks struct {
	HBlankStateChange           func(hblank, vblank bool)
	VBlankStateChange           func(vblank bool)
	TriggerSMPCVBlankIN         func()
	TriggerOptimizedINTBACKRead func()
	TriggerSpriteDrawEnd        func()

	// FrameComplete receives the composed frame as ABGR8888 rows with
	// pitch == width. The slice is only valid for the duration of the call.
	FrameComplete func(fb []uint32, width, height uint32)

	VDP1DrawFinished      func()
	VDP1FramebufferSwap   func()
	VDP2ResolutionChanged func(width, height uint32)
	VDP2DrawFinished      func()
}

// Config selects optional behavior at construction time.
type Config struct {
	Region Region

	// ThreadedVDP1/ThreadedVDP2 move the respective rendering work onto
	// worker goroutines fed by event queues.
	ThreadedVDP1 bool
	ThreadedVDP2 bool

	// Deinterlace renders both interlaced fields every frame into a
	// progressive output image.
	Deinterlace bool

	// TransparentMeshes replaces the stippled mesh pattern with actual
	// alpha blending at composition time.
	TransparentMeshes bool

	// ExclusiveMonitorTimings enables the unverified exclusive-monitor
	// rows of the timing tables. Off, exclusive HRES values fall back to
	// the equivalent standard mode.
	ExclusiveMonitorTimings bool

	// PaletteExtendedBlend permits extended color calculation to blend a
	// palette-sourced bottom layer in CRAM modes 1 and 2. Real hardware
	// may restrict this; no test exists either way, so the permissive
	// behavior is kept by default.
	PaletteExtendedBlend bool

	// BitmapDelayNonHiRes applies the bitmap access delay rules outside
	// hi-res modes. Known to break Baku Baku Animal, hence off.
	BitmapDelayNonHiRes bool

	// BitmapCycleSlotRelaxed accepts CPU cycle pattern slots for bitmap
	// data reads. Fixes several titles, likely inaccurate.
	BitmapCycleSlotRelaxed bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Region:                 RegionNTSC,
		PaletteExtendedBlend:   true,
		BitmapCycleSlotRelaxed: true,
	}
}

// vdpMem groups the memories that exist twice when rendering is threaded:
// once host-side (authoritative for CPU reads) and once renderer-side.
type vdpMem struct {
	vram1 []uint8
	vram2 []uint8
	cram  []uint8

	// cramCache mirrors CRAM with entries converted to ABGR8888. In CRAM
	// modes 0/1 each 5:5:5 word expands to one cached entry; mode 2 reads
	// bypass the cache.
	cramCache []uint32
}

func newVDPMem() (vdpMem, error) {
	m := vdpMem{
		vram1:     make([]uint8, VDP1VRAMSize),
		vram2:     make([]uint8, VDP2VRAMSize),
		cram:      make([]uint8, CRAMSize),
		cramCache: make([]uint32, CRAMCacheWords),
	}
	if m.vram1 == nil || m.vram2 == nil || m.cram == nil || m.cramCache == nil {
		return m, errors.New("vdp: memory allocation failed")
	}
	return m, nil
}

// cramCacheUpdate refreshes the cache entry covering a 16-bit CRAM word.
func (m *vdpMem) cramCacheUpdate(address uint32) {
	address &= CRAMSize - 2
	raw := binary.BigEndian.Uint16(m.cram[address:])
	m.cramCache[address>>1] = color555to888(raw)
}

// cramCacheRebuild reconverts the entire CRAM. Called when RAMCTL switches
// the CRAM mode to one of the 5:5:5 layouts.
func (m *vdpMem) cramCacheRebuild() {
	for addr := uint32(0); addr < CRAMSize; addr += 2 {
		m.cramCacheUpdate(addr)
	}
}

// cramColor resolves a palette index to an ABGR color for the given CRAM
// mode. Modes 0/1 use the converted cache; mode 2 reads 8:8:8 words.
func (m *vdpMem) cramColor(mode uint8, index uint32) uint32 {
	if mode == 2 {
		addr := (index << 2) & (CRAMSize - 4)
		raw := binary.BigEndian.Uint32(m.cram[addr:])
		return color888FromRaw(raw)
	}
	if mode == 0 {
		index &= 0x3FF
	} else {
		index &= 0x7FF
	}
	return m.cramCache[index]
}

// VDP1State tracks the command engine's execution status.
type VDP1State struct {
	drawing             bool
	spilloverCycles     uint64
	timingPenaltyCycles uint64
	doVBlankErase       bool
	doDisplayErase      bool
}

// VDP is the Saturn video display processor pair: the VDP1 sprite/polygon
// rasterizer and the VDP2 scroll/rotation compositor, driven by a single
// phase update event registered with the host scheduler.
type VDP struct {
	cfg Config
	cb  Callbacks

	mem vdpMem

	regs1 VDP1Regs
	regs2 VDP2Regs

	// Phase scheduler state
	hphase       int
	vphase       int
	hTimings     [numHPhases]uint32
	vTimings     [2][numVPhases]uint32
	vTimingField uint32
	vcntSkip     uint32

	hres             uint32
	vres             uint32
	exclusiveMonitor bool

	vblankEraseCyclesPerLine uint32
	vblankEraseLines         [2]uint32

	vdp1 VDP1State

	renderer *Renderer
}

// NewVDP constructs the VDP and registers its phase event with the supplied
// scheduler. The callbacks may contain nil entries for hooks the host does
// not care about.
func NewVDP(cfg Config, sched Scheduler, cb Callbacks) (*VDP, error) {
	mem, err := newVDPMem()
	if err != nil {
		return nil, fmt.Errorf("vdp: %w", err)
	}

	v := &VDP{
		cfg: cfg,
		cb:  cb,
		mem: mem,
	}
	v.regs1.Reset()
	v.regs2.Reset(cfg.Region == RegionPAL)

	v.renderer, err = newRenderer(&v.cfg, &v.cb)
	if err != nil {
		return nil, fmt.Errorf("vdp: %w", err)
	}

	v.resetPhase()
	v.updateResolution()

	if sched != nil {
		sched.RegisterEvent("VDP phase update", v.OnPhaseUpdate)
	}

	return v, nil
}

// Close shuts down the worker goroutines, if any.
func (v *VDP) Close() error {
	return v.renderer.shutdown()
}

// Reset returns the VDP to its power-on state. Memories are preserved on a
// soft reset, matching hardware.
func (v *VDP) Reset(hard bool) {
	if hard {
		clear(v.mem.vram1)
		clear(v.mem.vram2)
		clear(v.mem.cram)
		v.mem.cramCacheRebuild()
	}
	v.regs1.Reset()
	v.regs2.Reset(v.cfg.Region == RegionPAL)
	v.vdp1 = VDP1State{}
	v.resetPhase()
	v.regs2.tvmdDirty = true
	v.updateResolution()
	v.renderer.postReset(&v.mem, &v.regs1, &v.regs2, hard)
}

// nil-safe callback dispatch helpers

func (v *VDP) cbHBlank(hblank, vblank bool) {
	if v.cb.HBlankStateChange != nil {
		v.cb.HBlankStateChange(hblank, vblank)
	}
}

func (v *VDP) cbVBlank(vblank bool) {
	if v.cb.VBlankStateChange != nil {
		v.cb.VBlankStateChange(vblank)
	}
}

func (v *VDP) cbSMPCVBlankIN() {
	if v.cb.TriggerSMPCVBlankIN != nil {
		v.cb.TriggerSMPCVBlankIN()
	}
}

func (v *VDP) cbINTBACK() {
	if v.cb.TriggerOptimizedINTBACKRead != nil {
		v.cb.TriggerOptimizedINTBACKRead()
	}
}

func (v *VDP) cbSpriteDrawEnd() {
	if v.cb.TriggerSpriteDrawEnd != nil {
		v.cb.TriggerSpriteDrawEnd()
	}
}

// color helpers

// color555to888 expands a 5:5:5 color word to ABGR8888. Bit 15 is dropped.
func color555to888(c uint16) uint32 {
	r := uint32(c) & 0x1F
	g := (uint32(c) >> 5) & 0x1F
	b := (uint32(c) >> 10) & 0x1F
	r = (r << 3) | (r >> 2)
	g = (g << 3) | (g >> 2)
	b = (b << 3) | (b >> 2)
	return 0xFF000000 | (b << 16) | (g << 8) | r
}

// color888FromRaw converts a raw 8:8:8 CRAM/VRAM word (xxBBGGRR byte order
// as read big-endian) to ABGR8888.
func color888FromRaw(raw uint32) uint32 {
	r := raw & 0xFF
	g := (raw >> 8) & 0xFF
	b := (raw >> 16) & 0xFF
	return 0xFF000000 | (b << 16) | (g << 8) | r
}

func color888(r, g, b uint32) uint32 {
	return 0xFF000000 | (b << 16) | (g << 8) | r
}

// Introspection accessors, primarily for tests and debug front-ends.

// GetVDP1VRAM returns the host-side VDP1 VRAM.
func (v *VDP) GetVDP1VRAM() []uint8 { return v.mem.vram1 }

// GetVDP2VRAM returns the host-side VDP2 VRAM.
func (v *VDP) GetVDP2VRAM() []uint8 { return v.mem.vram2 }

// GetCRAM returns the host-side color RAM.
func (v *VDP) GetCRAM() []uint8 { return v.mem.cram }

// GetSpriteFB returns one of the two sprite framebuffers.
func (v *VDP) GetSpriteFB(index int) []uint8 { return v.renderer.spriteFB[index&1] }

// GetDisplayFBIndex returns which sprite framebuffer is being displayed.
func (v *VDP) GetDisplayFBIndex() uint8 { return v.regs1.displayFB }

// GetDrawFBIndex returns which sprite framebuffer is being drawn to.
func (v *VDP) GetDrawFBIndex() uint8 { return v.regs1.displayFB ^ 1 }

// GetHCNT returns the horizontal counter as visible through the bus.
func (v *VDP) GetHCNT() uint16 { return v.regs2.ReadHCNT() }

// GetVCNT returns the vertical counter as visible through the bus.
func (v *VDP) GetVCNT() uint16 { return v.regs2.ReadVCNT() }

// GetRawVCNT returns the internal line counter without skip adjustment.
func (v *VDP) GetRawVCNT() uint32 { return v.regs2.vcnt }

// VDP1Drawing reports whether the command engine is mid-list.
func (v *VDP) VDP1Drawing() bool { return v.vdp1.drawing }

// VDP1FrameEnded reports whether the current command list has ended.
func (v *VDP) VDP1FrameEnded() bool { return v.regs1.currFrameEnded }

// Resolution returns the active display resolution.
func (v *VDP) Resolution() (h, v2 uint32) { return v.hres, v.vres }

// Renderer returns the software renderer backing this VDP.
func (v *VDP) Renderer() *Renderer { return v.renderer }
