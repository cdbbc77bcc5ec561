package emu

import (
	"errors"

	"golang.org/x/sync/errgroup"
)

// Renderer is the software renderer. It owns shadow copies of VRAM, CRAM
// and the register banks, fed through event queues so the worker goroutines
// never touch host-thread state. With threading disabled the same event
// application code runs inline.
type Renderer struct {
	cfg *Config
	cb  *Callbacks

	// Renderer-owned shadows
	mem   vdpMem
	regs1 VDP1Regs
	regs2 VDP2Regs

	// Framebuffers. These exist once; the host bus reads the display side
	// directly and swaps are barriers in threaded mode.
	spriteFB    [2][]uint8
	altSpriteFB [2][]uint8
	meshFB      [2][2][]uint8 // [field][fbIndex]
	displayFB   uint8

	vdp1Ctx vdp1Context

	hres, vres       uint32
	exclusiveMonitor bool
	odd              bool

	// Output frame, ABGR8888, pitch MaxHRes
	framebuffer []uint32

	// Per-layer per-field line attributes
	layers      [2][numLayers]layerAttrs
	spriteExtra [2]spriteExtraAttrs

	// Per-field windows scratch
	windowScratch  [2][MaxHRes]bool
	ccWindow       [2][MaxHRes]bool

	// Per-field line state
	line [2]lineRenderState

	// Per-BG scroll accumulators, per field
	normBG [2][4]normBGLayerState

	// Rotation parameter dynamic state, per field
	rotState [2][2]rotParamState

	// VRAM fetchers: [field][bg]
	fetchers [2][numBGs]vramFetcher

	composer composeState

	// Threading
	vdp1Events chan vdp1Event
	vdp2Events chan vdp2Event
	group      errgroup.Group

	vdp1DoneSignal  chan struct{}
	vdp2DoneSignal  chan struct{}
	frameDoneSignal chan struct{}

	deinterlaceBegin    chan uint32
	deinterlaceEnd      chan struct{}
	deinterlaceShutdown bool
}

// layerAttrs is one layer's pixel attributes for a scanline.
type layerAttrs struct {
	color            [MaxHRes]uint32
	transparent      [MaxHRes]bool
	priority         [MaxHRes]uint8
	specialColorCalc [MaxHRes]bool
}

func (a *layerAttrs) reset() {
	for i := range a.transparent {
		a.transparent[i] = true
	}
}

// spriteExtraAttrs are the sprite layer's additional per-pixel attributes.
type spriteExtraAttrs struct {
	colorCalcRatio [MaxHRes]uint8
	normalShadow   [MaxHRes]bool
	msbShadow      [MaxHRes]bool
	shadowOrWindow [MaxHRes]bool
	window         [MaxHRes]bool
}

// lineRenderState carries everything PrepareLine derives for one scanline.
type lineRenderState struct {
	lineColor uint32
	backColor uint32

	// Rotation per-column state, per rotation parameter
	rotScrollX    [2][MaxHRes]int32
	rotScrollY    [2][MaxHRes]int32
	rotTransparent [2][MaxHRes]bool
	rotLineColor  [2][MaxHRes]uint32

	// VDP1 rotated framebuffer feed
	spriteCoordX [MaxHRes]int32
	spriteCoordY [MaxHRes]int32

	// Line colors captured by the rotation layers for the compositor
	rbgLineColors [2][MaxHRes]uint32
}

// normBGLayerState is the per-frame scroll accumulator of one NBG.
type normBGLayerState struct {
	fracScrollX  uint32
	fracScrollY  uint32
	scrollIncH   uint32
	lineScrollTableAddress uint32
	vertCellScrollOffset uint32
	vertCellScrollDelay  bool
	vertCellScrollRepeat bool
	mosaicCounterY uint32
}

// rotParamState is the accumulated rotation parameter state, advanced per
// scanline from the parameter table deltas.
type rotParamState struct {
	tbl rotationParamTable

	Xst, Yst int64  // 13.10 fixed point
	KA       uint32 // 16.10 fixed point
}

// vramFetcher pipelines VDP2 VRAM reads the way the hardware's access slots
// do: the character being drawn is the previous fetch when the one-tile
// delay applies.
type vramFetcher struct {
	currChar, nextChar character
	lastCharIndex      uint32
	lastCellX          uint32

	bitmapData        [8]uint8
	bitmapDataAddress uint32

	lastVCellScroll uint32
}

func (f *vramFetcher) reset() {
	f.currChar = character{}
	f.nextChar = character{}
	f.lastCharIndex = 0xFFFFFFFF
	f.lastCellX = 0xFFFFFFFF
	f.bitmapDataAddress = 0xFFFFFFFF
	f.lastVCellScroll = 0xFFFFFFFF
}

// character is a decoded pattern name entry.
type character struct {
	charNum       uint32
	palNum        uint32
	specColorCalc bool
	specPriority  bool
	flipH, flipV  bool
}

// Event kinds
type vdp1EventKind uint8

const (
	vdp1EvVRAMWrite8 vdp1EventKind = iota
	vdp1EvVRAMWrite16
	vdp1EvRegWrite
	vdp1EvCommand
	vdp1EvBeginFrame
	vdp1EvSwap
	vdp1EvSync
	vdp1EvShutdown
)

type vdp1Event struct {
	kind    vdp1EventKind
	address uint32
	value   uint16
	control vdp1Control
}

type vdp2EventKind uint8

const (
	vdp2EvVRAMWrite8 vdp2EventKind = iota
	vdp2EvVRAMWrite16
	vdp2EvCRAMWrite8
	vdp2EvCRAMWrite16
	vdp2EvRegWrite
	vdp2EvVDP1RegWrite
	vdp2EvBeginFrame
	vdp2EvRenderLine
	vdp2EvEndFrame
	vdp2EvErase
	vdp2EvSwap
	vdp2EvSetField
	vdp2EvLatchTVMD
	vdp2EvSetResolution
	vdp2EvSync
	vdp2EvReset
	vdp2EvShutdown
)

type vdp2Event struct {
	kind    vdp2EventKind
	address uint32
	value   uint16
	line    uint32
	cycles  uint64
	h, v    uint32
	flag    bool
}

const eventQueueDepth = 16384

func newRenderer(cfg *Config, cb *Callbacks) (*Renderer, error) {
	mem, err := newVDPMem()
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:         cfg,
		cb:          cb,
		mem:         mem,
		framebuffer: make([]uint32, MaxHRes*MaxVRes),
	}
	for i := 0; i < 2; i++ {
		r.spriteFB[i] = make([]uint8, VDP1FBSize)
		r.altSpriteFB[i] = make([]uint8, VDP1FBSize)
		r.meshFB[0][i] = make([]uint8, VDP1FBSize)
		r.meshFB[1][i] = make([]uint8, VDP1FBSize)
	}
	if r.framebuffer == nil {
		return nil, errors.New("renderer: framebuffer allocation failed")
	}
	r.regs1.Reset()
	r.regs2.Reset(cfg.Region == RegionPAL)
	r.odd = true
	r.applyReset()

	if cfg.ThreadedVDP1 {
		r.vdp1Events = make(chan vdp1Event, eventQueueDepth)
		r.vdp1DoneSignal = make(chan struct{}, 1)
		r.group.Go(r.vdp1WorkerLoop)
	}
	if cfg.ThreadedVDP2 {
		r.vdp2Events = make(chan vdp2Event, eventQueueDepth)
		r.vdp2DoneSignal = make(chan struct{}, 1)
		r.frameDoneSignal = make(chan struct{}, 1)
		r.group.Go(r.vdp2WorkerLoop)
	}
	if cfg.Deinterlace {
		r.deinterlaceBegin = make(chan uint32, 1)
		r.deinterlaceEnd = make(chan struct{}, 1)
		r.group.Go(r.deinterlaceWorkerLoop)
	}

	return r, nil
}

// shutdown stops the worker goroutines and waits for them to drain.
func (r *Renderer) shutdown() error {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvShutdown}
	}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvShutdown}
	}
	if r.cfg.Deinterlace {
		r.deinterlaceShutdown = true
		close(r.deinterlaceBegin)
	}
	return r.group.Wait()
}

// Worker loops. Each drains its queue in FIFO order; scheduling events see
// every write that preceded them.

func (r *Renderer) vdp1WorkerLoop() error {
	for ev := range r.vdp1Events {
		if ev.kind == vdp1EvShutdown {
			return nil
		}
		r.applyVDP1Event(ev)
	}
	return nil
}

func (r *Renderer) vdp2WorkerLoop() error {
	for ev := range r.vdp2Events {
		if ev.kind == vdp2EvShutdown {
			return nil
		}
		r.applyVDP2Event(ev)
	}
	return nil
}

func (r *Renderer) deinterlaceWorkerLoop() error {
	for y := range r.deinterlaceBegin {
		if r.deinterlaceShutdown {
			return nil
		}
		r.renderAltFieldLine(y)
		r.deinterlaceEnd <- struct{}{}
	}
	return nil
}

func (r *Renderer) applyVDP1Event(ev vdp1Event) {
	switch ev.kind {
	case vdp1EvVRAMWrite8:
		r.mem.vram1[ev.address&(VDP1VRAMSize-1)] = uint8(ev.value)
	case vdp1EvVRAMWrite16:
		putBE16(r.mem.vram1, ev.address&(VDP1VRAMSize-2), ev.value)
	case vdp1EvRegWrite:
		r.regs1.Write16(ev.address, ev.value)
	case vdp1EvCommand:
		r.vdp1HandleCommand(ev.address, ev.control)
	case vdp1EvBeginFrame:
		r.vdp1ApplyBeginFrame()
	case vdp1EvSwap:
		r.vdp1ApplySwap()
		r.vdp1DoneSignal <- struct{}{}
	case vdp1EvSync:
		r.vdp1DoneSignal <- struct{}{}
	}
}

func (r *Renderer) applyVDP2Event(ev vdp2Event) {
	switch ev.kind {
	case vdp2EvVRAMWrite8:
		r.mem.vram2[ev.address&(VDP2VRAMSize-1)] = uint8(ev.value)
	case vdp2EvVRAMWrite16:
		putBE16(r.mem.vram2, ev.address&(VDP2VRAMSize-2), ev.value)
	case vdp2EvCRAMWrite8:
		r.mem.cram[ev.address&(CRAMSize-1)] = uint8(ev.value)
		if r.regs2.cramMode != 2 {
			r.mem.cramCacheUpdate(ev.address &^ 1)
		}
	case vdp2EvCRAMWrite16:
		putBE16(r.mem.cram, ev.address&(CRAMSize-2), ev.value)
		if r.regs2.cramMode != 2 {
			r.mem.cramCacheUpdate(ev.address)
		}
	case vdp2EvRegWrite:
		prevMode := r.regs2.cramMode
		r.regs2.Write16(ev.address, ev.value)
		if r.regs2.cramMode != prevMode && r.regs2.cramMode != 2 {
			r.mem.cramCacheRebuild()
		}
	case vdp2EvVDP1RegWrite:
		r.regs1.Write16(ev.address, ev.value)
	case vdp2EvBeginFrame:
		r.beginFrame()
	case vdp2EvRenderLine:
		r.renderLine(ev.line)
	case vdp2EvEndFrame:
		r.endFrame()
		if r.frameDoneSignal != nil {
			r.frameDoneSignal <- struct{}{}
		}
	case vdp2EvErase:
		r.vdp1DoEraseFramebuffer(ev.cycles)
		if r.vdp2DoneSignal != nil {
			r.vdp2DoneSignal <- struct{}{}
		}
	case vdp2EvSwap:
		// With no VDP1 worker the swap applies here so it cannot race
		// in-flight line renders
		if !r.cfg.ThreadedVDP1 {
			r.vdp1ApplySwap()
		}
		r.vdp2DoneSignal <- struct{}{}
	case vdp2EvSetField:
		r.odd = ev.flag
	case vdp2EvLatchTVMD:
		r.regs2.LatchTVMD()
	case vdp2EvSetResolution:
		r.hres = ev.h
		r.vres = ev.v
		r.exclusiveMonitor = ev.flag
	case vdp2EvSync:
		r.vdp2DoneSignal <- struct{}{}
	case vdp2EvReset:
		r.applyReset()
	}
}

// ---------------------------------------------------------------------------
// Host-side entry points. Threaded: enqueue; unthreaded: apply inline.

func (r *Renderer) postVDP1VRAMWrite8(address uint32, value uint8) {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvVRAMWrite8, address: address, value: uint16(value)}
	} else {
		r.applyVDP1Event(vdp1Event{kind: vdp1EvVRAMWrite8, address: address, value: uint16(value)})
	}
}

func (r *Renderer) postVDP1VRAMWrite16(address uint32, value uint16) {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvVRAMWrite16, address: address, value: value}
	} else {
		r.applyVDP1Event(vdp1Event{kind: vdp1EvVRAMWrite16, address: address, value: value})
	}
}

// postVDP1RegWrite mirrors a VDP1 register write into the renderer shadow.
// Exactly one context applies it: the VDP1 worker if there is one, else the
// VDP2 worker (which consults VDP1 registers for the sprite layer), else
// inline.
func (r *Renderer) postVDP1RegWrite(address uint32, value uint16) {
	switch {
	case r.cfg.ThreadedVDP1:
		r.vdp1Events <- vdp1Event{kind: vdp1EvRegWrite, address: address, value: value}
	case r.cfg.ThreadedVDP2:
		r.vdp2Events <- vdp2Event{kind: vdp2EvVDP1RegWrite, address: address, value: value}
	default:
		r.regs1.Write16(address, value)
	}
}

func (r *Renderer) postVDP2VRAMWrite8(address uint32, value uint8) {
	ev := vdp2Event{kind: vdp2EvVRAMWrite8, address: address, value: uint16(value)}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) postVDP2VRAMWrite16(address uint32, value uint16) {
	ev := vdp2Event{kind: vdp2EvVRAMWrite16, address: address, value: value}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) postVDP2CRAMWrite8(address uint32, value uint8) {
	ev := vdp2Event{kind: vdp2EvCRAMWrite8, address: address, value: uint16(value)}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) postVDP2CRAMWrite16(address uint32, value uint16) {
	ev := vdp2Event{kind: vdp2EvCRAMWrite16, address: address, value: value}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) postVDP2RegWrite(address uint32, value uint16) {
	ev := vdp2Event{kind: vdp2EvRegWrite, address: address, value: value}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) vdp1ExecuteCommand(cmdAddress uint32, control vdp1Control) {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvCommand, address: cmdAddress, control: control}
	} else {
		r.vdp1HandleCommand(cmdAddress, control)
	}
}

func (r *Renderer) vdp1BeginFrame() {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvBeginFrame}
		return
	}
	r.vdp1ApplyBeginFrame()
}

func (r *Renderer) vdp1ApplyBeginFrame() {
	// Latch the interlace-dependent plotting mode for the frame
	dd := r.regs2.latchedInterlaceMode == InterlaceDouble
	r.vdp1Ctx.doubleV = r.cfg.Deinterlace && dd && !r.regs1.dblInterlaceDraw
	r.vdp1Ctx.doubleDensity = dd && r.regs1.dblInterlaceDraw && !r.cfg.Deinterlace
	if r.regs1.dblInterlaceDrawLine {
		r.vdp1Ctx.drawLine = 1
	} else {
		r.vdp1Ctx.drawLine = 0
	}
}

func (r *Renderer) vdp1EndFrame() {
	if r.cb.VDP1DrawFinished != nil {
		r.cb.VDP1DrawFinished()
	}
}

// vdp1SwapFramebuffer swaps the renderer's framebuffer index. In threaded
// mode the swap is a barrier: both workers observe it before the host
// proceeds.
func (r *Renderer) vdp1SwapFramebuffer() {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvSwap}
	}
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvSwap}
	} else if !r.cfg.ThreadedVDP2 {
		r.vdp1ApplySwap()
	}

	if r.cfg.ThreadedVDP2 {
		<-r.vdp2DoneSignal
	}
	if r.cfg.ThreadedVDP1 {
		<-r.vdp1DoneSignal
	}
}

func (r *Renderer) vdp1ApplySwap() {
	r.displayFB ^= 1
	r.regs1.prevCommandAddress = r.regs1.currCommandAddress
	r.regs1.LatchEraseParameters()
}

// vdp1EraseFramebuffer erases the display framebuffer, as a barrier in
// threaded mode so the erase never races a line draw.
func (r *Renderer) vdp1EraseFramebuffer(cycles uint64) {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvErase, cycles: cycles}
		<-r.vdp2DoneSignal
		return
	}
	r.vdp1DoEraseFramebuffer(cycles)
}

func (r *Renderer) vdp2RenderLine(y uint32) {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvRenderLine, line: y}
		return
	}
	r.renderLine(y)
}

func (r *Renderer) vdp2BeginFrame() {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvBeginFrame}
		return
	}
	r.beginFrame()
}

func (r *Renderer) vdp2EndFrame() {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvEndFrame}
		<-r.frameDoneSignal
		return
	}
	r.endFrame()
}

func (r *Renderer) vdp2SetField(odd bool) {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvSetField, flag: odd}
		return
	}
	r.odd = odd
}

func (r *Renderer) vdp2LatchTVMD() {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvLatchTVMD}
		return
	}
	r.regs2.LatchTVMD()
}

func (r *Renderer) vdp2SetResolution(h, v uint32, exclusive bool) {
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvSetResolution, h: h, v: v, flag: exclusive}
		return
	}
	r.hres = h
	r.vres = v
	r.exclusiveMonitor = exclusive
}

// syncWorkers blocks until both workers have drained their queues. This is
// the pre-save and post-load barrier.
func (r *Renderer) syncWorkers() {
	if r.cfg.ThreadedVDP1 {
		r.vdp1Events <- vdp1Event{kind: vdp1EvSync}
		<-r.vdp1DoneSignal
	}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- vdp2Event{kind: vdp2EvSync}
		<-r.vdp2DoneSignal
	}
}

// postReset mirrors the host state into the renderer shadows after a reset
// or state load, and rebuilds every derived cache.
func (r *Renderer) postReset(mem *vdpMem, regs1 *VDP1Regs, regs2 *VDP2Regs, hard bool) {
	r.syncWorkers()
	copy(r.mem.vram1, mem.vram1)
	copy(r.mem.vram2, mem.vram2)
	copy(r.mem.cram, mem.cram)
	r.regs1 = *regs1
	r.regs2 = *regs2
	r.displayFB = regs1.displayFB
	r.mem.cramCacheRebuild()
	r.regs2.updateEnabledBGs()
	r.regs2.cyclePatternsDirty = true
	if hard {
		for i := 0; i < 2; i++ {
			clear(r.spriteFB[i])
			clear(r.altSpriteFB[i])
			clear(r.meshFB[0][i])
			clear(r.meshFB[1][i])
		}
		r.displayFB = 0
	}
	ev := vdp2Event{kind: vdp2EvReset}
	if r.cfg.ThreadedVDP2 {
		r.vdp2Events <- ev
	} else {
		r.applyVDP2Event(ev)
	}
}

func (r *Renderer) applyReset() {
	for f := 0; f < 2; f++ {
		for l := range r.layers[f] {
			r.layers[f][l].reset()
		}
		for bg := range r.fetchers[f] {
			r.fetchers[f][bg].reset()
		}
		r.normBG[f] = [4]normBGLayerState{}
		for i := range r.normBG[f] {
			r.normBG[f][i].scrollIncH = 0x100
		}
		r.rotState[f] = [2]rotParamState{}
	}
}

func putBE16(buf []uint8, address uint32, value uint16) {
	buf[address] = uint8(value >> 8)
	buf[address+1] = uint8(value)
}
