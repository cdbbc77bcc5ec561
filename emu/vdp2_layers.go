package emu

import "encoding/binary"

// bgDot is a fetched background dot before layer attributes are attached.
type bgDot struct {
	color       uint32
	transparent bool
	specCC      bool
	specPri     bool
	colorLow    uint8 // lower three bits of the dot color, for SFCODE
	colorMSB    bool
}

// bgLayerIndex maps a BG index to its compositor layer slot.
func bgLayerIndex(bgIndex int) int {
	switch bgIndex {
	case bgNBG0, bgRBG1:
		return lyrNBG0
	case bgNBG1:
		return lyrNBG1
	case bgNBG2:
		return lyrNBG2
	case bgNBG3:
		return lyrNBG3
	default:
		return lyrRBG0
	}
}

// ---------------------------------------------------------------------------
// Sprite layer

// drawSpriteLayer converts the VDP1 framebuffer contents into the sprite
// layer's per-pixel attributes.
func (r *Renderer) drawSpriteLayer(y uint32, altField bool) {
	f := boolIndex(altField)
	attrs := &r.layers[f][lyrSprite]
	extra := &r.spriteExtra[f]
	sp := &r.regs2.spriteParams
	line := &r.line[f]

	fb := r.fbForField(altField, r.displayFB)
	pixel8 := r.regs1.pixel8Bits

	fbW := uint32(512)
	if pixel8 {
		fbW = 1024
	}
	fbH := uint32(256)

	// Hi-res modes halve the sprite framebuffer sampling rate
	doubleH := r.regs2.hresOn&2 != 0

	// The sprite layer's own window
	r.calcWindowInto(y, &sp.windowSet, altField, r.windowScratch[f][:])

	hres := r.hres
	step := uint32(1)
	if doubleH {
		step = 2
	}

	for x := uint32(0); x < hres; x += step {
		fx := x
		if doubleH {
			fx = x >> 1
		}
		fy := y

		if r.regs1.fbRotEnable {
			sx := line.spriteCoordX[x]
			sy := line.spriteCoordY[x]
			if sx < 0 || sy < 0 || uint32(sx) >= fbW || uint32(sy) >= fbH {
				r.spriteStorePixel(attrs, extra, x, step, spriteData{transparent: true}, 0)
				continue
			}
			fx, fy = uint32(sx), uint32(sy)
		}

		if r.windowScratch[f][x] {
			r.spriteStorePixel(attrs, extra, x, step, spriteData{transparent: true}, 0)
			continue
		}

		var raw uint16
		if pixel8 {
			raw = uint16(fb[(fy*fbW+fx)&(VDP1FBSize-1)])
		} else {
			raw = binary.BigEndian.Uint16(fb[((fy*fbW+fx)*2)&(VDP1FBSize-2):])
		}

		if sp.mixedFormat && !pixel8 && raw&0x8000 != 0 {
			// RGB pixel: 5:5:5 direct color, always priority group 0
			r.spriteStoreRGBPixel(attrs, extra, x, step, raw)
			continue
		}

		d := decodeSpriteData(raw, sp.spriteType)
		r.spriteStorePixel(attrs, extra, x, step, d, raw)
	}
}

func (r *Renderer) spriteStoreRGBPixel(attrs *layerAttrs, extra *spriteExtraAttrs, x, step uint32, raw uint16) {
	sp := &r.regs2.spriteParams
	for i := uint32(0); i < step && x+i < r.hres; i++ {
		attrs.color[x+i] = color555to888(raw)
		attrs.transparent[x+i] = false
		attrs.priority[x+i] = sp.priorities[0]
		attrs.specialColorCalc[x+i] = true
		extra.colorCalcRatio[x+i] = sp.colorCalcRatios[0]
		extra.normalShadow[x+i] = false
		extra.msbShadow[x+i] = false
		extra.shadowOrWindow[x+i] = false
	}
}

func (r *Renderer) spriteStorePixel(attrs *layerAttrs, extra *spriteExtraAttrs, x, step uint32, d spriteData, raw uint16) {
	sp := &r.regs2.spriteParams
	for i := uint32(0); i < step && x+i < r.hres; i++ {
		xi := x + i
		if d.transparent {
			attrs.transparent[xi] = true
			extra.normalShadow[xi] = false
			extra.msbShadow[xi] = false
			extra.shadowOrWindow[xi] = d.shadowOrWindow
			continue
		}
		attrs.color[xi] = r.mem.cramColor(r.regs2.cramMode, sp.colorDataOffset+uint32(d.colorData))
		attrs.transparent[xi] = false
		attrs.priority[xi] = sp.priorities[d.priority&7]
		attrs.specialColorCalc[xi] = true
		extra.colorCalcRatio[xi] = sp.colorCalcRatios[d.colorCalcRatio&7]
		extra.normalShadow[xi] = d.normalShadow
		extra.msbShadow[xi] = d.shadowOrWindow && !sp.windowEnable
		extra.shadowOrWindow[xi] = d.shadowOrWindow
	}
}

// ---------------------------------------------------------------------------
// Character and dot fetch

// fetchCharacter decodes the pattern name data entry at the given address.
func (r *Renderer) fetchCharacter(bg *BGParams, address uint32) character {
	var c character

	if bg.charMode == CharMode2Word {
		raw := r.vdp2Read32(address)
		c.charNum = raw & 0x7FFF
		c.palNum = (raw >> 16) & 0x7F
		c.specColorCalc = raw&0x10000000 != 0
		c.specPriority = raw&0x20000000 != 0
		c.flipH = raw&0x40000000 != 0
		c.flipV = raw&0x80000000 != 0
		return c
	}

	raw := uint32(r.vdp2Read16(address))

	if bg.colorFormat == ColorFormatPalette16 {
		c.palNum = (raw >> 12) & 0xF
		c.palNum |= bg.supplPalNum << 4
	} else {
		c.palNum = ((raw >> 12) & 7) << 4
	}
	c.specColorCalc = bg.supplSpecColorCalc
	c.specPriority = bg.supplSpecPriority

	suppl := bg.supplCharNum
	if bg.charMode == CharMode1WordExt {
		// Extended character mode: 12-bit character number, no flips
		if bg.cellSizeShift != 0 {
			c.charNum = ((suppl >> 2 & 7) << 14) | ((raw & 0xFFF) << 2) | (suppl & 3)
		} else {
			c.charNum = ((suppl >> 2 & 7) << 12) | (raw & 0xFFF)
		}
	} else {
		c.flipH = raw&0x400 != 0
		c.flipV = raw&0x800 != 0
		if bg.cellSizeShift != 0 {
			c.charNum = ((suppl >> 2 & 7) << 12) | ((raw & 0x3FF) << 2) | (suppl & 3)
		} else {
			c.charNum = (suppl << 10) | (raw & 0x3FF)
		}
	}

	return c
}

// cellDataBytes returns bytes per 8x8 cell for a color format.
func cellDataBytes(format ColorFormat) uint32 {
	switch format {
	case ColorFormatPalette16:
		return 32
	case ColorFormatPalette256:
		return 64
	case ColorFormatPalette2048, ColorFormatRGB555:
		return 128
	default:
		return 256
	}
}

// fetchCellDot reads the dot at (dotX, dotY) of the cell starting at the
// given VRAM address and resolves it through CRAM as needed.
func (r *Renderer) fetchCellDot(bg *BGParams, address uint32, palNum uint32, dotX, dotY uint32) bgDot {
	var d bgDot
	idx := dotY*8 + dotX

	switch bg.colorFormat {
	case ColorFormatPalette16:
		b := r.mem.vram2[(address+idx/2)&(VDP2VRAMSize-1)]
		dot := uint32(b >> 4)
		if dotX&1 != 0 {
			dot = uint32(b & 0xF)
		}
		d.transparent = dot == 0
		d.colorLow = uint8(dot & 7)
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+(palNum<<4|dot))
	case ColorFormatPalette256:
		dot := uint32(r.mem.vram2[(address+idx)&(VDP2VRAMSize-1)])
		d.transparent = dot == 0
		d.colorLow = uint8(dot & 7)
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+((palNum&0x70)<<4|dot))
	case ColorFormatPalette2048:
		dot := uint32(r.vdp2Read16(address + idx*2))
		d.transparent = dot&0x7FF == 0
		d.colorLow = uint8(dot & 7)
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+(dot&0x7FF))
	case ColorFormatRGB555:
		dot := r.vdp2Read16(address + idx*2)
		d.transparent = dot&0x8000 == 0
		d.colorLow = uint8(dot & 7)
		d.color = color555to888(dot)
		d.colorMSB = true
	default: // RGB888
		dot := r.vdp2Read32(address + idx*4)
		d.transparent = dot&0x80000000 == 0
		d.colorLow = uint8(dot & 7)
		d.color = color888FromRaw(dot)
		d.colorMSB = true
	}

	d.colorMSB = d.color&0x800000 != 0
	return d
}

// specialColorCalcFlag resolves the per-dot color calculation enable per
// the BG's special color calc mode.
func (r *Renderer) specialColorCalcFlag(bg *BGParams, dot *bgDot, char *character) bool {
	switch bg.specialColorCalcMode {
	case SpecialColorCalcPerScreen:
		return true
	case SpecialColorCalcPerCharacter:
		return char.specColorCalc
	case SpecialColorCalcPerDot:
		if !char.specColorCalc {
			return false
		}
		codes := &r.regs2.specialFunctionCodes[bg.specialFunctionSelect&1]
		return codes.colorMatches[dot.colorLow&7]
	default: // ColorDataMSB
		return dot.colorMSB
	}
}

// resolvePriority applies the special priority function to the BG's base
// priority number.
func (r *Renderer) resolvePriority(bg *BGParams, dot *bgDot, char *character) uint8 {
	pri := bg.priorityNumber
	switch bg.priorityMode {
	case PriorityPerCharacter:
		if char.specPriority {
			pri |= 1
		} else {
			pri &^= 1
		}
	case PriorityPerDot:
		codes := &r.regs2.specialFunctionCodes[bg.specialFunctionSelect&1]
		if char.specPriority && codes.colorMatches[dot.colorLow&7] {
			pri |= 1
		} else {
			pri &^= 1
		}
	}
	return pri
}

// ---------------------------------------------------------------------------
// Scroll BG

// drawScrollBG renders one line of a normal (scroll) background.
func (r *Renderer) drawScrollBG(y uint32, altField bool, bgIndex int) {
	f := boolIndex(altField)
	bg := &r.regs2.bgParams[bgIndex]
	attrs := &r.layers[f][bgLayerIndex(bgIndex)]
	st := &r.normBG[f][bgIndex]
	fet := &r.fetchers[f][bgIndex]

	r.calcWindowInto(y, &bg.windowSet, altField, r.windowScratch[f][:])

	fy := r.fieldY(y, altField)

	// Vertical mosaic holds the row
	if bg.mosaicEnable && r.regs2.mosaicV > 1 {
		fy -= fy % r.regs2.mosaicV
	}

	hres := r.hres
	scrollX := st.fracScrollX
	scrollIncH := st.scrollIncH

	mosaicCounter := uint32(0)
	var vcellY uint32
	haveVCell := false

	for x := uint32(0); x < hres; x++ {
		// Horizontal mosaic repeats the previous pixel
		if bg.mosaicEnable && r.regs2.mosaicH > 1 {
			if mosaicCounter > 0 {
				mosaicCounter--
				if x > 0 {
					attrs.color[x] = attrs.color[x-1]
					attrs.transparent[x] = attrs.transparent[x-1]
					attrs.priority[x] = attrs.priority[x-1]
					attrs.specialColorCalc[x] = attrs.specialColorCalc[x-1]
				}
				scrollX += scrollIncH
				continue
			}
			mosaicCounter = r.regs2.mosaicH - 1
		}

		if r.windowScratch[f][x] {
			attrs.transparent[x] = true
			scrollX += scrollIncH
			continue
		}

		sx := scrollX >> 8

		// Vertical cell scroll updates on 8-dot boundaries
		incV := bg.scrollIncV
		if incV == 0 || bgIndex >= 2 {
			incV = 0x100
		}
		sy := (st.fracScrollY + fy*incV) >> 8
		if bg.vertCellScrollEnable && bgIndex < 2 {
			cellCol := sx >> 3
			if !haveVCell || cellCol != fet.lastVCellScroll {
				fet.lastVCellScroll = cellCol
				stride := r.vertCellScrollStride()
				addr := r.regs2.vertCellScrollTableAddress + cellCol*stride + st.vertCellScrollOffset
				vcellY = (r.vdp2Read32(addr) >> 8) & 0x7FFFF
				haveVCell = true
			}
			sy = (st.fracScrollY + vcellY + fy*incV) >> 8
		}

		dot, char := r.fetchScrollDot(bg, fet, sx, sy)
		if dot.transparent {
			attrs.transparent[x] = true
		} else {
			attrs.color[x] = dot.color
			attrs.transparent[x] = false
			attrs.priority[x] = r.resolvePriority(bg, &dot, &char)
			attrs.specialColorCalc[x] = r.specialColorCalcFlag(bg, &dot, &char)
		}

		scrollX += scrollIncH
	}
}

// vertCellScrollStride is the byte distance between two cell columns in the
// vertical cell scroll table.
func (r *Renderer) vertCellScrollStride() uint32 {
	stride := uint32(0)
	for i := 0; i < 2; i++ {
		if r.regs2.bgEnabled[i] && r.regs2.bgParams[i].vertCellScrollEnable {
			stride += 4
		}
	}
	if stride == 0 {
		stride = 4
	}
	return stride
}

// fetchScrollDot maps a scroll coordinate to plane, page, character and dot
// for an NBG and fetches the dot.
func (r *Renderer) fetchScrollDot(bg *BGParams, fet *vramFetcher, sx, sy uint32) (bgDot, character) {
	if bg.bitmap {
		return r.fetchBitmapDot(bg, fet, sx, sy), character{palNum: bg.bitmapPalNum,
			specColorCalc: bg.bitmapSpecColorCalc, specPriority: bg.bitmapSpecPriority}
	}

	planePxH := 512 * bg.planeSizeH
	planePxV := 512 * bg.planeSizeV

	sx &= planePxH*2 - 1
	sy &= planePxV*2 - 1

	planeX := sx / planePxH
	planeY := sy / planePxV
	plane := planeY*2 + planeX

	inPlaneX := sx % planePxH
	inPlaneY := sy % planePxV
	pageX := inPlaneX >> 9
	pageY := inPlaneY >> 9
	page := pageY*bg.planeSizeH + pageX

	return r.fetchPageDot(bg, fet, bg.pageBaseAddresses[plane], page, inPlaneX&511, inPlaneY&511)
}

// fetchPageDot fetches the dot at page-local coordinates, going through the
// pipelined character fetcher.
func (r *Renderer) fetchPageDot(bg *BGParams, fet *vramFetcher, pageBase, page, px, py uint32) (bgDot, character) {
	cellShift := uint32(3) + bg.cellSizeShift // pixels per character side, log2
	charsPerSide := uint32(64) >> bg.cellSizeShift

	charX := px >> cellShift
	charY := py >> cellShift
	charIdx := charY*charsPerSide + charX

	patSize := patternNameDataSize(bg.charMode)
	address := pageBase + page*bg.pageSize() + charIdx*patSize

	// Pattern name access permission: banks without a PN slot render
	// transparent tiles
	if !bg.patNameAccess[r.bankForAddress(address)] {
		return bgDot{transparent: true}, character{}
	}

	// Pipelined fetch with the one-tile delay on illegal timing
	if charIdx != fet.lastCharIndex {
		fet.lastCharIndex = charIdx
		fet.nextChar, fet.currChar = r.fetchCharacter(bg, address), fet.nextChar
		if !bg.charPatDelay {
			fet.currChar = fet.nextChar
		}
	}
	char := fet.currChar

	// Locate the cell within the character
	cellX := (px >> 3) & (1<<bg.cellSizeShift - 1)
	cellY := (py >> 3) & (1<<bg.cellSizeShift - 1)
	if char.flipH {
		cellX = (1<<bg.cellSizeShift - 1) - cellX
	}
	if char.flipV {
		cellY = (1<<bg.cellSizeShift - 1) - cellY
	}
	cell := cellY<<bg.cellSizeShift + cellX

	dotX := px & 7
	dotY := py & 7
	if char.flipH {
		dotX = 7 - dotX
	}
	if char.flipV {
		dotY = 7 - dotY
	}

	cellBytes := cellDataBytes(bg.colorFormat)
	cellAddr := char.charNum*0x20 + cell*cellBytes

	if !bg.charPatAccess[r.bankForAddress(cellAddr)] {
		return bgDot{transparent: true}, char
	}

	dot := r.fetchCellDot(bg, cellAddr, char.palNum, dotX, dotY)
	return dot, char
}

// fetchBitmapDot fetches a dot from a bitmap BG.
func (r *Renderer) fetchBitmapDot(bg *BGParams, fet *vramFetcher, sx, sy uint32) bgDot {
	sx &= bg.bitmapSizeH - 1
	sy &= bg.bitmapSizeV - 1

	var address uint32
	switch bg.colorFormat {
	case ColorFormatPalette16:
		address = bg.bitmapBaseAddress + (sy*bg.bitmapSizeH+sx)/2
	case ColorFormatPalette256:
		address = bg.bitmapBaseAddress + sy*bg.bitmapSizeH + sx
	case ColorFormatPalette2048, ColorFormatRGB555:
		address = bg.bitmapBaseAddress + (sy*bg.bitmapSizeH+sx)*2
	default:
		address = bg.bitmapBaseAddress + (sy*bg.bitmapSizeH+sx)*4
	}

	bank := r.bankForAddress(address)
	if !bg.charPatAccess[bank] {
		return bgDot{transparent: true}
	}
	if bg.bitmapDelay[bank] {
		// Late chip access shifts the fetched data by 8 bytes
		address += 8
	}

	// The bitmap shares the cell fetch path with an 8x8 granularity
	cellBase := address &^ 7
	if fet.bitmapDataAddress != cellBase {
		fet.bitmapDataAddress = cellBase
	}

	switch bg.colorFormat {
	case ColorFormatPalette16:
		b := r.mem.vram2[address&(VDP2VRAMSize-1)]
		dot := uint32(b >> 4)
		if sx&1 != 0 {
			dot = uint32(b & 0xF)
		}
		d := bgDot{transparent: dot == 0, colorLow: uint8(dot & 7)}
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+(bg.bitmapPalNum<<4|dot))
		d.colorMSB = d.color&0x800000 != 0
		return d
	case ColorFormatPalette256:
		dot := uint32(r.mem.vram2[address&(VDP2VRAMSize-1)])
		d := bgDot{transparent: dot == 0, colorLow: uint8(dot & 7)}
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+((bg.bitmapPalNum&0x70)<<4|dot))
		d.colorMSB = d.color&0x800000 != 0
		return d
	case ColorFormatPalette2048:
		dot := uint32(r.vdp2Read16(address))
		d := bgDot{transparent: dot&0x7FF == 0, colorLow: uint8(dot & 7)}
		d.color = r.mem.cramColor(r.regs2.cramMode, bg.cramOffset+(dot&0x7FF))
		d.colorMSB = d.color&0x800000 != 0
		return d
	case ColorFormatRGB555:
		dot := r.vdp2Read16(address)
		d := bgDot{transparent: dot&0x8000 == 0, colorLow: uint8(dot & 7)}
		d.color = color555to888(dot)
		d.colorMSB = d.color&0x800000 != 0
		return d
	default:
		dot := r.vdp2Read32(address)
		d := bgDot{transparent: dot&0x80000000 == 0, colorLow: uint8(dot & 7)}
		d.color = color888FromRaw(dot)
		d.colorMSB = d.color&0x800000 != 0
		return d
	}
}

// ---------------------------------------------------------------------------
// Rotation BG

// drawRotationBG renders one line of a rotation background using the
// precomputed per-column screen coordinates.
func (r *Renderer) drawRotationBG(y uint32, altField bool, rbgIndex int) {
	f := boolIndex(altField)
	bgIndex := bgRBG0
	if rbgIndex == 1 {
		bgIndex = bgRBG1
	}
	bg := &r.regs2.bgParams[bgIndex]
	attrs := &r.layers[f][bgLayerIndex(bgIndex)]
	line := &r.line[f]
	fet := &r.fetchers[f][bgIndex]

	r.calcWindowInto(y, &bg.windowSet, altField, r.windowScratch[f][:])

	mode := r.regs2.commonRotParams.rotParamMode
	hres := r.hres

	// Window-based parameter selection uses window 0
	var rotWindow [MaxHRes]bool
	if mode == RotParamWindow {
		ws := WindowSet{enabled: [2]bool{true, false}, logicOR: true}
		r.calcWindowInto(y, &ws, altField, rotWindow[:])
	}

	for x := uint32(0); x < hres; x++ {
		if r.windowScratch[f][x] {
			attrs.transparent[x] = true
			continue
		}

		// Select the rotation parameter for this column
		p := 0
		switch mode {
		case RotParamB:
			p = 1
		case RotParamCoefficient:
			if line.rotTransparent[0][x] {
				p = 1
			}
		case RotParamWindow:
			if rotWindow[x] {
				p = 1
			}
		}
		if rbgIndex == 1 {
			// RBG1 always uses parameter B
			p = 1
		}

		rp := &r.regs2.rotParams[p]

		if rp.coeffTableEnable && line.rotTransparent[p][x] {
			attrs.transparent[x] = true
			continue
		}

		sx := line.rotScrollX[p][x]
		sy := line.rotScrollY[p][x]

		dot, char, ok := r.fetchRotationDot(bg, rp, fet, sx, sy)
		if !ok || dot.transparent {
			attrs.transparent[x] = true
			continue
		}

		attrs.color[x] = dot.color
		attrs.transparent[x] = false
		attrs.priority[x] = r.resolvePriority(bg, &dot, &char)
		attrs.specialColorCalc[x] = r.specialColorCalcFlag(bg, &dot, &char)

		// Coefficient line color: stored for the compositor when the
		// parameter that actually drew this pixel asked for it
		if rp.coeffUseLineColor && rp.coeffTableEnable {
			line.rbgLineColors[rbgIndex][x] = line.rotLineColor[p][x]
		} else {
			line.rbgLineColors[rbgIndex][x] = line.lineColor
		}
	}
}

// fetchRotationDot maps a rotation screen coordinate through the
// screen-over process, the 4x4 plane layout and the page structure.
func (r *Renderer) fetchRotationDot(bg *BGParams, rp *RotationParams, fet *vramFetcher, sx, sy int32) (bgDot, character, bool) {
	if bg.bitmap {
		if sx < 0 || sy < 0 {
			return bgDot{}, character{}, false
		}
		return r.fetchBitmapDot(bg, fet, uint32(sx), uint32(sy)), character{palNum: bg.bitmapPalNum,
			specColorCalc: bg.bitmapSpecColorCalc, specPriority: bg.bitmapSpecPriority}, true
	}

	planePxH := int32(512 * rp.planeSizeH)
	planePxV := int32(512 * rp.planeSizeV)
	totalH := planePxH * 4
	totalV := planePxV * 4

	useOverPattern := false

	switch rp.screenOverProcess {
	case ScreenOverRepeat:
		sx = ((sx % totalH) + totalH) % totalH
		sy = ((sy % totalV) + totalV) % totalV
	case ScreenOverRepeatChar:
		if sx < 0 || sy < 0 || sx >= totalH || sy >= totalV {
			useOverPattern = true
			sx = ((sx % totalH) + totalH) % totalH
			sy = ((sy % totalV) + totalV) % totalV
		}
	case ScreenOverTransparent:
		if sx < 0 || sy < 0 || sx >= totalH || sy >= totalV {
			return bgDot{}, character{}, false
		}
	case ScreenOverFixed512:
		if sx < 0 || sy < 0 || sx >= 512 || sy >= 512 {
			return bgDot{}, character{}, false
		}
	}

	planeX := uint32(sx) / uint32(planePxH)
	planeY := uint32(sy) / uint32(planePxV)
	plane := planeY*4 + planeX

	inPlaneX := uint32(sx) % uint32(planePxH)
	inPlaneY := uint32(sy) % uint32(planePxV)
	pageX := inPlaneX >> 9
	pageY := inPlaneY >> 9
	page := pageY*rp.planeSizeH + pageX

	if useOverPattern {
		// Out-of-bounds area repeats the screen-over pattern name
		char := r.decodeOverPatternCharacter(bg, rp)
		dotX := uint32(sx) & 7
		dotY := uint32(sy) & 7
		cellAddr := char.charNum * 0x20
		dot := r.fetchCellDot(bg, cellAddr, char.palNum, dotX, dotY)
		return dot, char, true
	}

	dot, char := r.fetchPageDot(bg, fet, rp.pageBaseAddresses[plane], page, inPlaneX&511, inPlaneY&511)
	return dot, char, true
}

// decodeOverPatternCharacter expands the screen-over pattern name register
// into a character the same way a 1-word pattern name decodes.
func (r *Renderer) decodeOverPatternCharacter(bg *BGParams, rp *RotationParams) character {
	if bg.charMode == CharMode2Word {
		// The register only holds a 1-word entry
		return character{charNum: uint32(rp.screenOverPatternName) & 0x7FFF}
	}
	var c character
	raw := uint32(rp.screenOverPatternName)
	if bg.colorFormat == ColorFormatPalette16 {
		c.palNum = (raw>>12)&0xF | bg.supplPalNum<<4
	} else {
		c.palNum = ((raw >> 12) & 7) << 4
	}
	c.flipH = raw&0x400 != 0
	c.flipV = raw&0x800 != 0
	c.charNum = (bg.supplCharNum << 10) | (raw & 0x3FF)
	return c
}
