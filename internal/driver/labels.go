package driver

import "fmt"

// FormFactor distinguishes continuous tape from pre-cut labels.
type FormFactor int

const (
	Endless FormFactor = iota
	DieCut
	RoundDieCut
)

func (f FormFactor) String() string {
	switch f {
	case Endless:
		return "endless"
	case DieCut:
		return "die-cut"
	case RoundDieCut:
		return "round die-cut"
	default:
		return fmt.Sprintf("FormFactor(%d)", int(f))
	}
}

// Label describes one Brother QL media type. Dimensions are in millimetres
// (TapeSize) and 300 dpi dots (DotsTotal, DotsPrintable). A zero second
// component means the label has no fixed length.
type Label struct {
	Identifier    string
	TapeSize      [2]int
	DotsTotal     [2]int
	DotsPrintable [2]int
	OffsetRight   int
	FeedMargin    int
	Form          FormFactor
}

// mediaType is the byte the printer expects in the print information command.
func (l Label) mediaType() byte {
	if l.Form == Endless {
		return 0x0A
	}
	return 0x0B
}

var labels = []Label{
	{Identifier: "12", TapeSize: [2]int{12, 0}, DotsTotal: [2]int{142, 0}, DotsPrintable: [2]int{106, 0}, OffsetRight: 29, FeedMargin: 35, Form: Endless},
	{Identifier: "29", TapeSize: [2]int{29, 0}, DotsTotal: [2]int{342, 0}, DotsPrintable: [2]int{306, 0}, OffsetRight: 6, FeedMargin: 35, Form: Endless},
	{Identifier: "38", TapeSize: [2]int{38, 0}, DotsTotal: [2]int{449, 0}, DotsPrintable: [2]int{413, 0}, OffsetRight: 12, FeedMargin: 35, Form: Endless},
	{Identifier: "50", TapeSize: [2]int{50, 0}, DotsTotal: [2]int{590, 0}, DotsPrintable: [2]int{554, 0}, OffsetRight: 12, FeedMargin: 35, Form: Endless},
	{Identifier: "54", TapeSize: [2]int{54, 0}, DotsTotal: [2]int{636, 0}, DotsPrintable: [2]int{590, 0}, OffsetRight: 0, FeedMargin: 35, Form: Endless},
	{Identifier: "62", TapeSize: [2]int{62, 0}, DotsTotal: [2]int{732, 0}, DotsPrintable: [2]int{696, 0}, OffsetRight: 12, FeedMargin: 35, Form: Endless},
	{Identifier: "102", TapeSize: [2]int{102, 0}, DotsTotal: [2]int{1200, 0}, DotsPrintable: [2]int{1164, 0}, OffsetRight: 12, FeedMargin: 35, Form: Endless},
	{Identifier: "17x54", TapeSize: [2]int{17, 54}, DotsTotal: [2]int{201, 636}, DotsPrintable: [2]int{165, 566}, OffsetRight: 0, Form: DieCut},
	{Identifier: "17x87", TapeSize: [2]int{17, 87}, DotsTotal: [2]int{201, 1026}, DotsPrintable: [2]int{165, 956}, OffsetRight: 0, Form: DieCut},
	{Identifier: "23x23", TapeSize: [2]int{23, 23}, DotsTotal: [2]int{272, 272}, DotsPrintable: [2]int{202, 202}, OffsetRight: 42, Form: DieCut},
	{Identifier: "29x42", TapeSize: [2]int{29, 42}, DotsTotal: [2]int{342, 495}, DotsPrintable: [2]int{306, 425}, OffsetRight: 6, Form: DieCut},
	{Identifier: "29x90", TapeSize: [2]int{29, 90}, DotsTotal: [2]int{342, 1061}, DotsPrintable: [2]int{306, 991}, OffsetRight: 6, Form: DieCut},
	{Identifier: "39x90", TapeSize: [2]int{38, 90}, DotsTotal: [2]int{449, 1061}, DotsPrintable: [2]int{413, 991}, OffsetRight: 12, Form: DieCut},
	{Identifier: "39x48", TapeSize: [2]int{39, 48}, DotsTotal: [2]int{461, 565}, DotsPrintable: [2]int{425, 495}, OffsetRight: 6, Form: DieCut},
	{Identifier: "52x29", TapeSize: [2]int{52, 29}, DotsTotal: [2]int{614, 341}, DotsPrintable: [2]int{578, 271}, OffsetRight: 0, Form: DieCut},
	{Identifier: "62x29", TapeSize: [2]int{62, 29}, DotsTotal: [2]int{732, 341}, DotsPrintable: [2]int{696, 271}, OffsetRight: 12, Form: DieCut},
	{Identifier: "62x100", TapeSize: [2]int{62, 100}, DotsTotal: [2]int{732, 1179}, DotsPrintable: [2]int{696, 1109}, OffsetRight: 12, Form: DieCut},
	{Identifier: "102x51", TapeSize: [2]int{102, 51}, DotsTotal: [2]int{1200, 596}, DotsPrintable: [2]int{1164, 526}, OffsetRight: 12, Form: DieCut},
	{Identifier: "102x152", TapeSize: [2]int{102, 153}, DotsTotal: [2]int{1200, 1804}, DotsPrintable: [2]int{1164, 1660}, OffsetRight: 12, Form: DieCut},
	{Identifier: "d12", TapeSize: [2]int{12, 12}, DotsTotal: [2]int{142, 142}, DotsPrintable: [2]int{94, 94}, OffsetRight: 113, Form: RoundDieCut},
	{Identifier: "d24", TapeSize: [2]int{24, 24}, DotsTotal: [2]int{284, 284}, DotsPrintable: [2]int{236, 236}, OffsetRight: 42, Form: RoundDieCut},
	{Identifier: "d58", TapeSize: [2]int{58, 58}, DotsTotal: [2]int{688, 688}, DotsPrintable: [2]int{618, 618}, OffsetRight: 51, Form: RoundDieCut},
}

var labelIndex = func() map[string]Label {
	m := make(map[string]Label, len(labels))
	for _, l := range labels {
		m[l.Identifier] = l
	}
	return m
}()

// LookupLabel returns the media description for a label identifier.
func LookupLabel(id string) (Label, bool) {
	l, ok := labelIndex[id]
	return l, ok
}

// Labels returns every supported label, in catalogue order.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}
