package emu

import "encoding/binary"

// coord is a signed pixel coordinate pair.
type coord struct {
	x, y int32
}

// ---------------------------------------------------------------------------
// Steppers

// lineStepper walks the pixels of a straight line along its major axis,
// optionally producing an anti-alias companion pixel one step over on the
// minor axis.
type lineStepper struct {
	x, y       int32
	sx, sy     int32
	adx, ady   int32
	err        int32
	swapped    bool // major axis is Y
	pos, total int32

	minorStepped bool
}

func newLineStepper(a, b coord) lineStepper {
	s := lineStepper{x: a.x, y: a.y, sx: 1, sy: 1}
	s.adx = b.x - a.x
	if s.adx < 0 {
		s.adx = -s.adx
		s.sx = -1
	}
	s.ady = b.y - a.y
	if s.ady < 0 {
		s.ady = -s.ady
		s.sy = -1
	}
	if s.ady > s.adx {
		s.swapped = true
		s.adx, s.ady = s.ady, s.adx
	}
	s.err = 2*s.ady - s.adx
	s.total = s.adx + 1
	return s
}

// Length returns the number of pixels on the line.
func (s *lineStepper) Length() int32 { return s.total }

// CanStep reports whether the current pixel is still on the line.
func (s *lineStepper) CanStep() bool { return s.pos < s.total }

// Coord returns the current pixel.
func (s *lineStepper) Coord() coord { return coord{s.x, s.y} }

// AACoord returns the anti-alias companion of the current pixel: one step
// along the minor axis, filling the gap left by a diagonal step.
func (s *lineStepper) AACoord() coord {
	if s.swapped {
		return coord{s.x + s.sx, s.y}
	}
	return coord{s.x, s.y + s.sy}
}

// MinorStepped reports whether the last Step moved along the minor axis.
func (s *lineStepper) MinorStepped() bool { return s.minorStepped }

// Step advances to the next pixel.
func (s *lineStepper) Step() {
	s.pos++
	s.minorStepped = false
	if s.err > 0 {
		if s.swapped {
			s.x += s.sx
		} else {
			s.y += s.sy
		}
		s.err -= 2 * s.adx
		s.minorStepped = true
	}
	s.err += 2 * s.ady
	if s.swapped {
		s.y += s.sy
	} else {
		s.x += s.sx
	}
}

// SystemClip advances the stepper until the current pixel is inside the
// system clip area, returning how many pixels were skipped. Lines that never
// enter the area skip their whole length.
func (s *lineStepper) SystemClip(maxH, maxV int32) int32 {
	var skipped int32
	for s.CanStep() {
		c := s.Coord()
		if c.x >= 0 && c.x <= maxH && c.y >= 0 && c.y <= maxV {
			break
		}
		s.Step()
		skipped++
	}
	return skipped
}

// gouraudStepper interpolates a 5:5:5 color between two endpoints with 16
// fractional bits per channel.
type gouraudStepper struct {
	r, g, b    int64
	dr, dg, db int64
}

func newGouraudStepper(from, to uint16, length int32) gouraudStepper {
	div := int64(length - 1)
	if div <= 0 {
		div = 1
	}
	ext := func(c uint16, shift uint) int64 {
		return int64((c>>shift)&0x1F) << 16
	}
	s := gouraudStepper{
		r: ext(from, 0), g: ext(from, 5), b: ext(from, 10),
	}
	s.dr = (ext(to, 0) - s.r) / div
	s.dg = (ext(to, 5) - s.g) / div
	s.db = (ext(to, 10) - s.b) / div
	return s
}

func (s *gouraudStepper) Step() {
	s.r += s.dr
	s.g += s.dg
	s.b += s.db
}

func (s *gouraudStepper) Skip(n int32) {
	s.r += s.dr * int64(n)
	s.g += s.dg * int64(n)
	s.b += s.db * int64(n)
}

// Color returns the current color as a 5:5:5 word.
func (s *gouraudStepper) Color() uint16 {
	r := clampInt64(s.r>>16, 0, 31)
	g := clampInt64(s.g>>16, 0, 31)
	b := clampInt64(s.b>>16, 0, 31)
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10
}

// Apply offsets a 5:5:5 pixel by the current Gouraud value relative to
// mid-gray (0x10 per channel), saturating each channel.
func (s *gouraudStepper) Apply(pixel uint16) uint16 {
	r := clampInt64(int64(pixel&0x1F)+(s.r>>16)-0x10, 0, 31)
	g := clampInt64(int64((pixel>>5)&0x1F)+(s.g>>16)-0x10, 0, 31)
	b := clampInt64(int64((pixel>>10)&0x1F)+(s.b>>16)-0x10, 0, 31)
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10 | (pixel & 0x8000)
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// textureStepper interpolates a texture U coordinate across a span of
// pixels. High-speed shrink collapses several texels per output pixel; the
// even/odd coordinate select picks which of the skipped texels is sampled.
type textureStepper struct {
	u    int64 // 16.16
	du   int64
	even bool
	hss  bool
}

func newTextureStepper(uStart, uEnd int32, length int32, hss, even bool) textureStepper {
	div := int64(length - 1)
	if div <= 0 {
		div = 1
	}
	s := textureStepper{
		u:    int64(uStart) << 16,
		du:   ((int64(uEnd) - int64(uStart)) << 16) / div,
		even: even,
		hss:  hss,
	}
	if length == 1 {
		s.du = 0
	}
	return s
}

func (s *textureStepper) Step() { s.u += s.du }

// U returns the texel column to sample for the current pixel.
func (s *textureStepper) U() int32 {
	u := int32(s.u >> 16)
	if s.hss {
		// High-speed shrink samples only even or odd texels
		if s.even {
			u &^= 1
		} else {
			u |= 1
		}
	}
	return u
}

// quadStepper interpolates the two opposite edges A-D and B-C of a quad,
// yielding a left and right coordinate for each row.
type quadStepper struct {
	a, b, c, d coord
	row, rows  int32
}

func newQuadStepper(a, b, c, d coord) quadStepper {
	rows := maxInt32(edgeLength(a, d), edgeLength(b, c))
	return quadStepper{a: a, b: b, c: c, d: d, rows: rows}
}

func edgeLength(p, q coord) int32 {
	return maxInt32(absInt32(q.x-p.x), absInt32(q.y-p.y)) + 1
}

func (s *quadStepper) CanStep() bool { return s.row < s.rows }
func (s *quadStepper) Step()         { s.row++ }
func (s *quadStepper) Rows() int32   { return s.rows }
func (s *quadStepper) Row() int32    { return s.row }

func lerpCoord(p, q coord, num, den int32) coord {
	if den <= 0 {
		return p
	}
	return coord{
		x: p.x + (q.x-p.x)*num/den,
		y: p.y + (q.y-p.y)*num/den,
	}
}

// LeftCoord returns the A-D edge coordinate for the current row.
func (s *quadStepper) LeftCoord() coord {
	return lerpCoord(s.a, s.d, s.row, s.rows-1)
}

// RightCoord returns the B-C edge coordinate for the current row.
func (s *quadStepper) RightCoord() coord {
	return lerpCoord(s.b, s.c, s.row, s.rows-1)
}

// ---------------------------------------------------------------------------
// Command state

// vdp1Cmd is a fully decoded drawing command.
type vdp1Cmd struct {
	control vdp1Control

	// CMDPMOD
	msbOn             bool
	highSpeedShrink   bool
	preClipDisable    bool
	userClipEnable    bool
	userClipOutside   bool
	meshEnable        bool
	endCodeDisable    bool
	transparentPixelDisable bool
	colorMode         uint8
	gouraudEnable     bool
	colorCalcBits     uint8

	color    uint16
	srcAddr  uint32
	sizeW    int32
	sizeH    int32
	grdAddr  uint32
	textured bool

	coords [4]coord

	gouraudColors [4]uint16
}

// vdp1Context is the renderer-side VDP1 drawing state mutated by the
// clipping and local coordinate commands.
type vdp1Context struct {
	sysClipH, sysClipV int32
	userClipX0, userClipY0 int32
	userClipX1, userClipY1 int32
	localX, localY int32

	// doubleV: deinterlace enabled in double-density without DIE; Y
	// coordinates address full vertical resolution.
	doubleV bool
	// doubleDensity: double-density interlace without deinterlace; only
	// lines matching drawLine are plotted.
	doubleDensity bool
	drawLine      int32

	// plotted/clipped implement the early-out: once a pixel lands
	// in-bounds, the next out-of-bounds pixel ends the primitive.
	plotted bool
	clipped bool
}

func (r *Renderer) vdp1ReadVRAM16(address uint32) uint16 {
	return binary.BigEndian.Uint16(r.mem.vram1[address&(VDP1VRAMSize-2):])
}

// vdp1DecodeCommand reads and decodes a command table from the renderer's
// VRAM shadow.
func (r *Renderer) vdp1DecodeCommand(cmdAddress uint32, control vdp1Control) vdp1Cmd {
	pmod := r.vdp1ReadVRAM16(cmdAddress + cmdOffPMOD)

	cmd := vdp1Cmd{
		control:                 control,
		msbOn:                   pmod&0x8000 != 0,
		highSpeedShrink:         pmod&0x1000 != 0,
		preClipDisable:          pmod&0x0800 != 0,
		userClipEnable:          pmod&0x0400 != 0,
		userClipOutside:         pmod&0x0200 != 0,
		meshEnable:              pmod&0x0100 != 0,
		endCodeDisable:          pmod&0x0080 != 0,
		transparentPixelDisable: pmod&0x0040 != 0,
		colorMode:               uint8((pmod >> 3) & 7),
		gouraudEnable:           pmod&0x0004 != 0,
		colorCalcBits:           uint8(pmod & 3),

		color:   r.vdp1ReadVRAM16(cmdAddress + cmdOffCOLR),
		srcAddr: uint32(r.vdp1ReadVRAM16(cmdAddress+cmdOffSRCA)) << 3,
		grdAddr: uint32(r.vdp1ReadVRAM16(cmdAddress+cmdOffGRDA)) << 3,
	}

	size := r.vdp1ReadVRAM16(cmdAddress + cmdOffSIZE)
	cmd.sizeW = int32((size>>8)&0x3F) * 8
	cmd.sizeH = int32(size & 0xFF)

	for i := uint32(0); i < 4; i++ {
		cmd.coords[i] = coord{
			x: signExtend13(r.vdp1ReadVRAM16(cmdAddress+cmdOffXA+i*4)) + r.vdp1Ctx.localX,
			y: signExtend13(r.vdp1ReadVRAM16(cmdAddress+cmdOffYA+i*4)) + r.vdp1Ctx.localY,
		}
	}

	if cmd.gouraudEnable {
		for i := uint32(0); i < 4; i++ {
			cmd.gouraudColors[i] = r.vdp1ReadVRAM16(cmd.grdAddr + i*2)
		}
	}

	return cmd
}

// vdp1HandleCommand dispatches one decoded command on the render side.
func (r *Renderer) vdp1HandleCommand(cmdAddress uint32, control vdp1Control) {
	switch control.command {
	case cmdDrawNormalSprite:
		r.vdp1DrawNormalSprite(cmdAddress, control)
	case cmdDrawScaledSprite:
		r.vdp1DrawScaledSprite(cmdAddress, control)
	case cmdDrawDistortedSprite, cmdDrawDistortedAlt:
		cmd := r.vdp1DecodeCommand(cmdAddress, control)
		cmd.textured = true
		r.vdp1DrawQuad(&cmd)
	case cmdDrawPolygon:
		cmd := r.vdp1DecodeCommand(cmdAddress, control)
		r.vdp1DrawQuad(&cmd)
	case cmdDrawPolylines, cmdDrawPolylinesAlt:
		cmd := r.vdp1DecodeCommand(cmdAddress, control)
		for i := 0; i < 4; i++ {
			from := cmd.gouraudColors[i]
			to := cmd.gouraudColors[(i+1)&3]
			r.vdp1DrawLine(&cmd, cmd.coords[i], cmd.coords[(i+1)&3], from, to)
		}
	case cmdDrawLine:
		cmd := r.vdp1DecodeCommand(cmdAddress, control)
		r.vdp1DrawLine(&cmd, cmd.coords[0], cmd.coords[1], cmd.gouraudColors[0], cmd.gouraudColors[1])
	case cmdSetUserClipping, cmdSetUserClippingAlt:
		cmd := r.vdp1DecodeCommand(cmdAddress, control)
		r.vdp1Ctx.userClipX0 = cmd.coords[0].x - r.vdp1Ctx.localX
		r.vdp1Ctx.userClipY0 = cmd.coords[0].y - r.vdp1Ctx.localY
		r.vdp1Ctx.userClipX1 = cmd.coords[2].x - r.vdp1Ctx.localX
		r.vdp1Ctx.userClipY1 = cmd.coords[2].y - r.vdp1Ctx.localY
	case cmdSetSystemClipping:
		x := signExtend13(r.vdp1ReadVRAM16(cmdAddress + cmdOffXC))
		y := signExtend13(r.vdp1ReadVRAM16(cmdAddress + cmdOffYC))
		r.vdp1Ctx.sysClipH = x & 0x3FF
		r.vdp1Ctx.sysClipV = y & 0x1FF
	case cmdSetLocalCoordinates:
		r.vdp1Ctx.localX = signExtend13(r.vdp1ReadVRAM16(cmdAddress + cmdOffXA))
		r.vdp1Ctx.localY = signExtend13(r.vdp1ReadVRAM16(cmdAddress + cmdOffYA))
	}
}

// vdp1DrawNormalSprite draws an unscaled textured sprite: the quad is the
// character size anchored at coordinate A.
func (r *Renderer) vdp1DrawNormalSprite(cmdAddress uint32, control vdp1Control) {
	cmd := r.vdp1DecodeCommand(cmdAddress, control)
	cmd.textured = true

	w := maxInt32(cmd.sizeW, 1) - 1
	h := maxInt32(cmd.sizeH, 1) - 1
	a := cmd.coords[0]
	cmd.coords[1] = coord{a.x + w, a.y}
	cmd.coords[2] = coord{a.x + w, a.y + h}
	cmd.coords[3] = coord{a.x, a.y + h}

	r.vdp1DrawQuad(&cmd)
}

// vdp1DrawScaledSprite derives the destination quad from the zoom point and
// draws a textured quad.
func (r *Renderer) vdp1DrawScaledSprite(cmdAddress uint32, control vdp1Control) {
	cmd := r.vdp1DecodeCommand(cmdAddress, control)
	cmd.textured = true

	a := cmd.coords[0]
	var x0, y0, x1, y1 int32

	if control.zoomPoint == 0 {
		// Two-point form: A is one corner, C the opposite
		x0, y0 = a.x, a.y
		x1, y1 = cmd.coords[2].x, cmd.coords[2].y
	} else {
		// Zoom point form: B holds the display size, the zoom point
		// selects which part of the quad A anchors
		w := cmd.coords[1].x - r.vdp1Ctx.localX
		h := cmd.coords[1].y - r.vdp1Ctx.localY

		switch control.zoomPoint & 3 { // horizontal: 1=left, 2=center, 3=right
		case 2:
			x0 = a.x - w/2
		case 3:
			x0 = a.x - w
		default:
			x0 = a.x
		}
		switch (control.zoomPoint >> 2) & 3 { // vertical: 1=top, 2=center, 3=bottom
		case 2:
			y0 = a.y - h/2
		case 3:
			y0 = a.y - h
		default:
			y0 = a.y
		}
		x1 = x0 + w
		y1 = y0 + h
	}

	cmd.coords[0] = coord{x0, y0}
	cmd.coords[1] = coord{x1, y0}
	cmd.coords[2] = coord{x1, y1}
	cmd.coords[3] = coord{x0, y1}

	r.vdp1DrawQuad(&cmd)
}

// texel sampling result
const (
	texelOpaque = iota
	texelTransparent
	texelEndCode
)

// vdp1ReadTexel samples the texture at (u, v) and resolves it to a raw
// framebuffer pixel value per the command's color mode.
func (r *Renderer) vdp1ReadTexel(cmd *vdp1Cmd, u, v int32) (uint16, int) {
	if u < 0 || v < 0 || u >= cmd.sizeW || v >= cmd.sizeH {
		return 0, texelTransparent
	}

	// Character flip
	if cmd.control.charFlip&1 != 0 {
		u = cmd.sizeW - 1 - u
	}
	if cmd.control.charFlip&2 != 0 {
		v = cmd.sizeH - 1 - v
	}

	switch cmd.colorMode {
	case 0: // 16 colors, bank mode
		b := r.mem.vram1[(cmd.srcAddr+uint32(v*cmd.sizeW+u)/2)&(VDP1VRAMSize-1)]
		dot := uint16(b >> 4)
		if u&1 != 0 {
			dot = uint16(b & 0xF)
		}
		if dot == 0xF && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		return (cmd.color &^ 0xF) | dot, texelOpaque
	case 1: // 16 colors, lookup table
		b := r.mem.vram1[(cmd.srcAddr+uint32(v*cmd.sizeW+u)/2)&(VDP1VRAMSize-1)]
		dot := uint16(b >> 4)
		if u&1 != 0 {
			dot = uint16(b & 0xF)
		}
		if dot == 0xF && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		lut := uint32(cmd.color) << 3
		return r.vdp1ReadVRAM16(lut + uint32(dot)*2), texelOpaque
	case 2: // 64 colors
		dot := uint16(r.mem.vram1[(cmd.srcAddr+uint32(v*cmd.sizeW+u))&(VDP1VRAMSize-1)]) & 0x3F
		if dot == 0x3F && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		return (cmd.color &^ 0x3F) | dot, texelOpaque
	case 3: // 128 colors
		dot := uint16(r.mem.vram1[(cmd.srcAddr+uint32(v*cmd.sizeW+u))&(VDP1VRAMSize-1)]) & 0x7F
		if dot == 0x7F && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		return (cmd.color &^ 0x7F) | dot, texelOpaque
	case 4: // 256 colors
		dot := uint16(r.mem.vram1[(cmd.srcAddr+uint32(v*cmd.sizeW+u))&(VDP1VRAMSize-1)])
		if dot == 0xFF && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		return (cmd.color &^ 0xFF) | dot, texelOpaque
	default: // 16-bit RGB
		dot := r.vdp1ReadVRAM16(cmd.srcAddr + uint32(v*cmd.sizeW+u)*2)
		if dot == 0x7FFF && !cmd.endCodeDisable {
			return 0, texelEndCode
		}
		if dot == 0 && !cmd.transparentPixelDisable {
			return 0, texelTransparent
		}
		return dot, texelOpaque
	}
}

// vdp1DrawLine draws a straight line with optional Gouraud shading and
// anti-aliasing between two endpoint colors.
func (r *Renderer) vdp1DrawLine(cmd *vdp1Cmd, a, b coord, gFrom, gTo uint16) {
	line := newLineStepper(a, b)
	grd := newGouraudStepper(gFrom, gTo, line.Length())

	if !cmd.preClipDisable {
		skipped := line.SystemClip(r.vdp1Ctx.sysClipH, r.vdp1Ctx.sysClipV)
		grd.Skip(skipped)
	}

	r.vdp1Ctx.plotted = false
	r.vdp1Ctx.clipped = false

	for line.CanStep() {
		c := line.Coord()
		inBounds := r.vdp1PlotPixel(cmd, c.x, c.y, cmd.color, &grd)
		if line.MinorStepped() {
			aa := line.AACoord()
			r.vdp1PlotPixel(cmd, aa.x, aa.y, cmd.color, &grd)
		}
		if !inBounds && r.vdp1Ctx.plotted {
			// Once in-bounds pixels have been plotted, leaving the
			// clip area means the rest of the line is out too
			break
		}
		grd.Step()
		line.Step()
	}
}

// vdp1DrawQuad draws a textured or solid quad by interpolating the A-D and
// B-C edges and drawing a textured line per row.
func (r *Renderer) vdp1DrawQuad(cmd *vdp1Cmd) {
	quad := newQuadStepper(cmd.coords[0], cmd.coords[1], cmd.coords[2], cmd.coords[3])
	rows := quad.Rows()

	for quad.CanStep() {
		row := quad.Row()
		left := quad.LeftCoord()
		right := quad.RightCoord()

		// Texture V for this row
		var texV int32
		if cmd.textured && rows > 1 {
			texV = row * cmd.sizeH / rows
		}

		// Edge Gouraud colors: A-D on the left, B-C on the right
		var gLeft, gRight uint16
		if cmd.gouraudEnable {
			gl := newGouraudStepper(cmd.gouraudColors[0], cmd.gouraudColors[3], rows)
			gl.Skip(row)
			gLeft = gl.Color()
			gr := newGouraudStepper(cmd.gouraudColors[1], cmd.gouraudColors[2], rows)
			gr.Skip(row)
			gRight = gr.Color()
		}

		r.vdp1DrawTexturedRow(cmd, left, right, texV, gLeft, gRight)
		quad.Step()
	}
}

// vdp1DrawTexturedRow draws one row of a quad between the interpolated edge
// coordinates.
func (r *Renderer) vdp1DrawTexturedRow(cmd *vdp1Cmd, left, right coord, texV int32, gLeft, gRight uint16) {
	line := newLineStepper(left, right)
	length := line.Length()
	grd := newGouraudStepper(gLeft, gRight, length)
	tex := newTextureStepper(0, cmd.sizeW-1, length, cmd.highSpeedShrink, r.regs1.evenOddCoordSelect)

	if !cmd.preClipDisable {
		skipped := line.SystemClip(r.vdp1Ctx.sysClipH, r.vdp1Ctx.sysClipV)
		grd.Skip(skipped)
		for i := int32(0); i < skipped; i++ {
			tex.Step()
		}
	}

	r.vdp1Ctx.plotted = false
	r.vdp1Ctx.clipped = false

	endCodes := 0
	for line.CanStep() {
		pixel := cmd.color
		plot := true
		if cmd.textured {
			var kind int
			pixel, kind = r.vdp1ReadTexel(cmd, tex.U(), texV)
			switch kind {
			case texelEndCode:
				endCodes++
				if endCodes >= 2 {
					return
				}
				plot = false
			case texelTransparent:
				plot = false
			}
		}

		if plot {
			c := line.Coord()
			inBounds := r.vdp1PlotPixel(cmd, c.x, c.y, pixel, &grd)
			if !inBounds && r.vdp1Ctx.plotted {
				return
			}
		}

		grd.Step()
		tex.Step()
		line.Step()
	}
}

// vdp1PlotPixel applies the full pixel write contract: clipping, mesh,
// interlace line select, color calculation, and the main/mesh/alternate
// framebuffer routing. Returns whether the pixel was inside the system clip
// area.
func (r *Renderer) vdp1PlotPixel(cmd *vdp1Cmd, x, y int32, pixel uint16, grd *gouraudStepper) bool {
	ctx := &r.vdp1Ctx

	maxV := ctx.sysClipV
	if ctx.doubleV {
		maxV = maxV<<1 | 1
	}
	if x < 0 || x > ctx.sysClipH || y < 0 || y > maxV {
		ctx.clipped = true
		return false
	}
	ctx.plotted = true

	if cmd.userClipEnable {
		inside := x >= ctx.userClipX0 && x <= ctx.userClipX1 &&
			y >= ctx.userClipY0 && y <= ctx.userClipY1
		if cmd.userClipOutside == inside {
			return true
		}
	}

	mesh := cmd.meshEnable
	if mesh && !r.cfg.TransparentMeshes {
		if (x^y)&1 != 0 {
			return true
		}
		mesh = false
	}

	altField := false
	switch {
	case ctx.doubleDensity:
		// Double-density interlace draws only the configured field lines
		if y&1 != ctx.drawLine {
			return true
		}
		y >>= 1
	case ctx.doubleV:
		// Deinterlacing: odd lines land in the alternate framebuffer
		altField = y&1 != 0
		y >>= 1
	}

	fbIndex := r.displayFB ^ 1

	if r.regs1.pixel8Bits {
		address := (uint32(y)<<10 + uint32(x)) & (VDP1FBSize - 1)
		value := uint8(pixel)
		if cmd.msbOn {
			value |= 0x80
		}
		if mesh && r.cfg.TransparentMeshes {
			r.meshFB[boolIndex(altField)][fbIndex][address] = value | 0x80
			return true
		}
		r.fbForField(altField, fbIndex)[address] = value
		if r.cfg.TransparentMeshes {
			r.meshFB[boolIndex(altField)][fbIndex][address] = 0
		}
		return true
	}

	address := (uint32(y)<<10 + uint32(x)<<1) & (VDP1FBSize - 2)
	fb := r.fbForField(altField, fbIndex)

	if cmd.gouraudEnable {
		pixel = grd.Apply(pixel)
	}

	if cmd.msbOn {
		// MSB ON writes only set the framebuffer MSB
		old := binary.BigEndian.Uint16(fb[address:])
		binary.BigEndian.PutUint16(fb[address:], old|0x8000)
		return true
	}

	switch cmd.colorCalcBits {
	case 1: // shadow: halve the destination if its MSB is set
		old := binary.BigEndian.Uint16(fb[address:])
		if old&0x8000 != 0 {
			pixel = halve555(old) | 0x8000
		} else {
			return true
		}
	case 2: // half-luminance source
		pixel = halve555(pixel) | (pixel & 0x8000)
	case 3: // half-transparency against the destination when its MSB is set
		old := binary.BigEndian.Uint16(fb[address:])
		if old&0x8000 != 0 {
			pixel = average555(pixel, old) | (pixel & 0x8000)
		}
	}

	if mesh && r.cfg.TransparentMeshes {
		binary.BigEndian.PutUint16(r.meshFB[boolIndex(altField)][fbIndex][address:], pixel|0x8000)
		return true
	}

	binary.BigEndian.PutUint16(fb[address:], pixel)
	if r.cfg.TransparentMeshes {
		binary.BigEndian.PutUint16(r.meshFB[boolIndex(altField)][fbIndex][address:], 0)
	}
	return true
}

// fbForField selects the main or deinterlace-alternate framebuffer.
func (r *Renderer) fbForField(altField bool, fbIndex uint8) []uint8 {
	if altField {
		return r.altSpriteFB[fbIndex]
	}
	return r.spriteFB[fbIndex]
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

func halve555(c uint16) uint16 {
	return (c >> 1) & 0x3DEF
}

func average555(a, b uint16) uint16 {
	return halve555(a) + halve555(b)
}

// vdp1DoEraseFramebuffer fills the latched erase window of the display
// framebuffer with the latched erase value. With a nonzero budget each
// 16-bit write costs one cycle and the erase stops when it runs out.
func (r *Renderer) vdp1DoEraseFramebuffer(cycles uint64) {
	countCycles := cycles != 0

	fbIndex := r.displayFB
	fb := r.spriteFB[fbIndex]
	altFB := r.altSpriteFB[fbIndex]

	doubleDensity := r.regs2.latchedInterlaceMode == InterlaceDouble

	scaleV := uint32(0)
	if doubleDensity {
		scaleV = 1
	}

	maxH := uint32(400)
	if r.regs2.hresOn&1 != 0 {
		maxH = 428
	}
	maxV := r.vres >> scaleV
	if maxV == 0 {
		maxV = 256
	}

	x1 := minUint32(uint32(r.regs1.latchedEraseX1), maxH)
	x3 := minUint32(uint32(r.regs1.latchedEraseX3), maxH)
	y1 := minUint32(uint32(r.regs1.latchedEraseY1), maxV) << scaleV
	y3 := minUint32(uint32(r.regs1.latchedEraseY3), maxV) << scaleV

	mirror := r.cfg.Deinterlace && doubleDensity
	value := r.regs1.latchedEraseValue

	for y := y1; y <= y3; y++ {
		for x := x1; x < x3; x++ {
			address := (y<<10 + x<<1) & (VDP1FBSize - 2)
			binary.BigEndian.PutUint16(fb[address:], value)
			if mirror {
				binary.BigEndian.PutUint16(altFB[address:], value)
			}
			if r.cfg.TransparentMeshes {
				binary.BigEndian.PutUint16(r.meshFB[0][fbIndex][address:], 0)
				if mirror {
					binary.BigEndian.PutUint16(r.meshFB[1][fbIndex][address:], 0)
				}
			}
			if countCycles {
				if cycles == 0 {
					return
				}
				cycles--
			}
		}
	}
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
