package driver

// Model describes the raster capabilities of one printer model.
type Model struct {
	Identifier     string
	MinLengthDots  int
	MaxLengthDots  int
	BytesPerRow    int
	ModeSetting    bool
	Cutting        bool
	ExpandedMode   bool
	Compression    bool
	InvalidateSize int
}

var models = []Model{
	{Identifier: "QL-500", MinLengthDots: 295, MaxLengthDots: 11811, BytesPerRow: 90, InvalidateSize: 200},
	{Identifier: "QL-550", MinLengthDots: 295, MaxLengthDots: 11811, BytesPerRow: 90, Cutting: true, InvalidateSize: 200},
	{Identifier: "QL-560", MinLengthDots: 295, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, InvalidateSize: 200},
	{Identifier: "QL-570", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, InvalidateSize: 200},
	{Identifier: "QL-580N", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-650TD", MinLengthDots: 295, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-700", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, InvalidateSize: 200},
	{Identifier: "QL-710W", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-720NW", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-800", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, InvalidateSize: 400},
	{Identifier: "QL-810W", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 400},
	{Identifier: "QL-820NWB", MinLengthDots: 150, MaxLengthDots: 11811, BytesPerRow: 90, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 400},
	{Identifier: "QL-1050", MinLengthDots: 295, MaxLengthDots: 35433, BytesPerRow: 162, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-1060N", MinLengthDots: 295, MaxLengthDots: 35433, BytesPerRow: 162, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 200},
	{Identifier: "QL-1100", MinLengthDots: 301, MaxLengthDots: 35434, BytesPerRow: 162, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 400},
	{Identifier: "QL-1110NWB", MinLengthDots: 301, MaxLengthDots: 35434, BytesPerRow: 162, ModeSetting: true, Cutting: true, ExpandedMode: true, Compression: true, InvalidateSize: 400},
}

var modelIndex = func() map[string]Model {
	m := make(map[string]Model, len(models))
	for _, mod := range models {
		m[mod.Identifier] = mod
	}
	return m
}()

// LookupModel returns the capabilities of a printer model.
func LookupModel(id string) (Model, bool) {
	m, ok := modelIndex[id]
	return m, ok
}

// Models returns every supported model identifier, in catalogue order.
func Models() []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.Identifier)
	}
	return out
}
