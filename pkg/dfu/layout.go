package dfu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// LayoutLexer tokenizes DfuSe memory layout strings such as
//
//	@Internal Flash  /0x08000000/04*016Kg,01*064Kg,07*128Kg
//
// The name after '@' may contain spaces, so it gets its own lexer state.
var LayoutLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "At", Pattern: `@`, Action: lexer.Push("LayoutName")},
		{Name: "Hex", Pattern: `0[xX][0-9A-Fa-f]+`},
		{Name: "Int", Pattern: `[0-9]+`},
		{Name: "Star", Pattern: `\*`},
		{Name: "Slash", Pattern: `/`},
		{Name: "Comma", Pattern: `,`},
		// Optional size multiplier followed by the access letter
		{Name: "Unit", Pattern: `[ BKM]?[a-g]`},
	},
	"LayoutName": {
		{Name: "Name", Pattern: `[^/]+`},
		{Name: "NameEnd", Pattern: `/`, Action: lexer.Pop()},
	},
})

// Layout is a parsed DfuSe memory layout descriptor.
type Layout struct {
	Name    string    `At @Name NameEnd`
	Regions []*Region `@@ ( Slash @@ )* Slash?`
}

// Region is a contiguous run of sector groups starting at Address.
type Region struct {
	Address string         `@Hex Slash`
	Groups  []*SectorGroup `@@ ( Comma @@ )*`
}

// SectorGroup is Count sectors of Size units with the same access rights.
type SectorGroup struct {
	Count string `@Int Star`
	Size  string `@Int`
	Unit  string `@Unit`
}

// Access bits encoded by the letters 'a' through 'g'.
const (
	AccessReadable = 1 << iota
	AccessErasable
	AccessWritable
)

var layoutParser = participle.MustBuild[Layout](
	participle.Lexer(LayoutLexer),
	participle.UseLookahead(2),
)

// Sector is one expanded sector group with absolute bounds.
type Sector struct {
	Start  uint32
	Size   uint32
	Count  int
	Access int
}

// End returns the first address past the group.
func (s Sector) End() uint64 {
	return uint64(s.Start) + uint64(s.Size)*uint64(s.Count)
}

// ParseLayout parses a DfuSe interface string.
func ParseLayout(s string) (*Layout, error) {
	l, err := layoutParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	l.Name = strings.TrimSpace(l.Name)
	if _, err := l.Sectors(); err != nil {
		return nil, err
	}
	return l, nil
}

// Sectors expands the layout into absolute sector groups.
func (l *Layout) Sectors() ([]Sector, error) {
	var out []Sector
	for _, r := range l.Regions {
		start, err := strconv.ParseUint(r.Address, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid region address %q: %w", r.Address, err)
		}
		addr := uint64(start)
		for _, g := range r.Groups {
			s, err := g.expand(uint32(addr))
			if err != nil {
				return nil, err
			}
			out = append(out, s)
			addr = s.End()
		}
	}
	return out, nil
}

func (g *SectorGroup) expand(start uint32) (Sector, error) {
	// Counts and sizes are zero-padded decimal
	count, err := strconv.Atoi(g.Count)
	if err != nil {
		return Sector{}, fmt.Errorf("invalid sector count %q: %w", g.Count, err)
	}
	size, err := strconv.Atoi(g.Size)
	if err != nil {
		return Sector{}, fmt.Errorf("invalid sector size %q: %w", g.Size, err)
	}

	mult := 1
	access := g.Unit[len(g.Unit)-1]
	if len(g.Unit) == 2 {
		switch g.Unit[0] {
		case 'K':
			mult = 1024
		case 'M':
			mult = 1024 * 1024
		}
	}

	return Sector{
		Start:  start,
		Size:   uint32(size * mult),
		Count:  count,
		Access: int(access-'a') + 1,
	}, nil
}

// Writable reports whether addr falls inside a writable sector.
func (l *Layout) Writable(addr uint32) bool {
	sectors, err := l.Sectors()
	if err != nil {
		return false
	}
	for _, s := range sectors {
		if uint64(addr) >= uint64(s.Start) && uint64(addr) < s.End() {
			return s.Access&AccessWritable != 0
		}
	}
	return false
}
