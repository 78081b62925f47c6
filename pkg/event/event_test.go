package event

import "testing"

func TestRangeEventIDRoundTrip(t *testing.T) {
	cases := []Range{
		{Base: 0x0102030405060000, Size: 1},
		{Base: 0x0102030405060000, Size: 2},
		{Base: 0x0102030405060000, Size: 16},
		{Base: 0x0102030405060000, Size: 32768},
	}
	for _, r := range cases {
		got := DecodeRangeEventID(EncodeRangeEventID(r))
		if got != r {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, r)
		}
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Base: 0x100, Size: 16}
	if !r.Contains(0x100) || !r.Contains(0x10F) {
		t.Errorf("expected endpoints to be contained")
	}
	if r.Contains(0x110) {
		t.Errorf("0x110 should be outside the range")
	}
}

func TestListFindAndIdentifiedMTI(t *testing.T) {
	l := &List{Events: []Entry{{ID: 5, Status: StatusSet}, {ID: 6, Status: StatusUnknown}}}
	mti, ok := l.IdentifiedMTI(5, MTIConsumerIdentifiedSet, MTIConsumerIdentifiedClear, MTIConsumerIdentifiedUnknown)
	if !ok || mti != MTIConsumerIdentifiedSet {
		t.Errorf("IdentifiedMTI(5) = %x,%v want Set", mti, ok)
	}
	mti, ok = l.IdentifiedMTI(6, MTIConsumerIdentifiedSet, MTIConsumerIdentifiedClear, MTIConsumerIdentifiedUnknown)
	if !ok || mti != MTIConsumerIdentifiedUnknown {
		t.Errorf("IdentifiedMTI(6) = %x,%v want Unknown", mti, ok)
	}
	if _, ok := l.IdentifiedMTI(99, 0, 0, 0); ok {
		t.Errorf("IdentifiedMTI for unregistered event should fail")
	}
}

func TestEnumeratorOrderRangesFirst(t *testing.T) {
	l := &List{
		Ranges: []Range{{Base: 0x1000, Size: 2}},
		Events: []Entry{{ID: 0x42, Status: StatusSet}},
	}
	en := NewEnumerator(l, MTIConsumerRangeIdentified, MTIConsumerIdentifiedSet, MTIConsumerIdentifiedClear, MTIConsumerIdentifiedUnknown)

	var mtis []uint16
	for {
		more := en.Next(func(mti uint16, id uint64) bool {
			mtis = append(mtis, mti)
			return true
		})
		if !more {
			break
		}
	}
	if len(mtis) != 2 || mtis[0] != MTIConsumerRangeIdentified || mtis[1] != MTIConsumerIdentifiedSet {
		t.Errorf("unexpected enumeration order: %v", mtis)
	}
}
