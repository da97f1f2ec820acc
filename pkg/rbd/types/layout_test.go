package types

import "testing"

func TestLayout_NumObjectsDefaultShape(t *testing.T) {
	layout := Layout{ObjectSize: 1 << 22, StripeUnit: 1 << 22, StripeCount: 1}

	testCases := []struct {
		size     uint64
		expected uint64
	}{
		{0, 0},
		{1, 1},
		{1 << 22, 1},
		{(1 << 22) + 1, 2},
		{4 << 22, 4},
	}

	for _, tc := range testCases {
		if found := layout.NumObjects(tc.size); found != tc.expected {
			t.Errorf("size %d should need %d objects, found %d", tc.size, tc.expected, found)
		}
	}
}

func TestLayout_NumObjectsStriped(t *testing.T) {
	// Two objects per set, half object stripe unit.
	layout := Layout{ObjectSize: 1 << 12, StripeUnit: 1 << 11, StripeCount: 2}

	// A full period covers both objects completely.
	if found := layout.NumObjects(layout.Period()); found != 2 {
		t.Errorf("full period should use 2 objects, found %d", found)
	}

	// A single stripe unit touches only the first object.
	if found := layout.NumObjects(1 << 11); found != 1 {
		t.Errorf("one stripe unit should use 1 object, found %d", found)
	}

	// Two stripe units land on both objects of the set.
	if found := layout.NumObjects(1 << 12); found != 2 {
		t.Errorf("two stripe units should use 2 objects, found %d", found)
	}
}

func TestLayout_ObjectMapCompatibility(t *testing.T) {
	layout := Layout{ObjectSize: 1 << 12, StripeUnit: 1 << 12, StripeCount: 1}

	compatible := MaxObjectMapObjectCount << 12
	if !layout.CompatibleWithObjectMap(compatible) {
		t.Error("size at the limit should be compatible")
	}
	if layout.CompatibleWithObjectMap(compatible + (1 << 12)) {
		t.Error("size over the limit should not be compatible")
	}
}
