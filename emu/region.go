package emu

// Region represents the console video standard (NTSC or PAL)
type Region int

const (
	RegionNTSC Region = iota
	RegionPAL
)

func (r Region) String() string {
	switch r {
	case RegionNTSC:
		return "NTSC"
	case RegionPAL:
		return "PAL"
	default:
		return "Unknown"
	}
}

// DefaultRegion returns the default region (NTSC).
func DefaultRegion() Region {
	return RegionNTSC
}

// Horizontal phase indices. Each scanline walks these four phases in order.
const (
	hphaseActive = iota
	hphaseRightBorder
	hphaseSync
	hphaseLeftBorder
	numHPhases
)

// Vertical phase indices. Each frame walks these six phases in order.
const (
	vphaseActive = iota
	vphaseBottomBorder
	vphaseBlankingAndSync
	vphaseVCounterSkip
	vphaseTopBorder
	vphaseLastLine
	numVPhases
)

// Horizontal phase timings, keyed by TVMD.HRESOn.
// Each entry is the HCNT interval spent in [active, right border, sync, left
// border] before the next phase begins. Values are in dots; the phase
// scheduler multiplies them by the dot clock factor (2 for hi-res and
// exclusive modes with HRESOn bit 1 set, 4 otherwise).
//
// The exclusive monitor rows (4-7) have never been verified against real
// hardware; they are provisional and only reachable when
// Config.ExclusiveMonitorTimings is set.
var hTimingTable = [8][numHPhases]uint32{
	{320, 54, 26, 27},  // Normal Graphic A (320)
	{352, 51, 29, 23},  // Normal Graphic B (352)
	{640, 108, 52, 54}, // Hi-Res Graphic A (640)
	{704, 102, 58, 46}, // Hi-Res Graphic B (704)
	{160, 27, 13, 13},  // Exclusive Normal Graphic A
	{176, 11, 13, 12},  // Exclusive Normal Graphic B
	{320, 54, 26, 26},  // Exclusive Hi-Res Graphic A
	{352, 22, 26, 24},  // Exclusive Hi-Res Graphic B
}

// Vertical phase timings for standard monitors, keyed by
// [PAL][VRESOn][field]. Each entry holds the VCNT value at which the phase
// [bottom border, blanking/sync, VCNT skip, top border, last line, active]
// begins; the final entry is the total line count and wraps back to the
// active phase. Odd interlaced fields run one line short.
var vTimingTable = [2][4][2][numVPhases]uint32{
	// NTSC
	{
		{
			{224, 232, 237, 255, 262, 263}, // even/progressive
			{224, 232, 237, 255, 261, 262}, // odd
		},
		{
			{240, 240, 245, 255, 262, 263},
			{240, 240, 245, 255, 261, 262},
		},
		{
			{224, 232, 237, 255, 262, 263},
			{224, 232, 237, 255, 261, 262},
		},
		{
			{240, 240, 245, 255, 262, 263},
			{240, 240, 245, 255, 261, 262},
		},
	},
	// PAL
	{
		{
			{224, 256, 259, 281, 312, 313},
			{224, 256, 259, 281, 311, 312},
		},
		{
			{240, 264, 267, 289, 312, 313},
			{240, 264, 267, 289, 311, 312},
		},
		{
			{256, 272, 275, 297, 312, 313},
			{256, 272, 275, 297, 311, 312},
		},
		{
			{256, 272, 275, 297, 312, 313},
			{256, 272, 275, 297, 311, 312},
		},
	},
}

// Vertical phase timings for exclusive monitors, keyed by [HRESOn&1][field].
// Unverified, like the exclusive rows of hTimingTable.
var vTimingTableExclusive = [2][2][numVPhases]uint32{
	{
		{480, 496, 506, 509, 524, 525},
		{480, 496, 506, 509, 526, 527},
	},
	{
		{480, 496, 506, 546, 561, 562},
		{480, 496, 506, 546, 563, 564},
	},
}

// Cycles available per line for the VBlank framebuffer erase, keyed by
// TVMD.HRESOn. A fixed penalty is subtracted to account for cycles the VDP1
// cannot use at the edges of the line; 113 rather than the documented 200
// because the larger penalty erases fewer pixels than several titles need
// (Battle Garegga, Die Hard Arcade, Sonic R among others).
const vblankErasePenalty = 113

var vblankEraseCyclesTable = [8]uint32{
	1708 - vblankErasePenalty, // Normal Graphic A
	1820 - vblankErasePenalty, // Normal Graphic B
	1708 - vblankErasePenalty, // Hi-Res Graphic A
	1820 - vblankErasePenalty, // Hi-Res Graphic B
	852 - vblankErasePenalty,  // Exclusive Normal Graphic A
	848 - vblankErasePenalty,  // Exclusive Normal Graphic B
	852 - vblankErasePenalty,  // Exclusive Hi-Res Graphic A
	848 - vblankErasePenalty,  // Exclusive Hi-Res Graphic B
}

// Horizontal resolutions, keyed by TVMD.HRESOn&3.
var hResTable = [4]uint32{320, 352, 640, 704}

// Vertical resolutions, keyed by TVMD.VRESOn. NTSC only uses the first two
// entries; exclusive monitors are fixed at 480 lines.
var vResTable = [4]uint32{224, 240, 256, 256}
