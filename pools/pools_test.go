package pools

import "testing"

func TestGetBufferHonorsCapacityHint(t *testing.T) {
	buf := GetBuffer(128)
	if len(buf) != 0 {
		t.Fatalf("GetBuffer() length = %d, want 0", len(buf))
	}
	if cap(buf) < 128 {
		t.Fatalf("GetBuffer() capacity = %d, want >= 128", cap(buf))
	}
}

func TestReturnBufferRecyclesWithinCeiling(t *testing.T) {
	buf := GetBuffer(64)
	buf = append(buf, []byte("hello")...)
	ReturnBuffer(buf)

	recycled := GetBuffer(1)
	if len(recycled) != 0 {
		t.Fatalf("recycled buffer length = %d, want 0", len(recycled))
	}
}

func TestReturnBufferDropsOversizedBuffers(t *testing.T) {
	oversized := make([]byte, 0, maxPooledBufferBytes+1)
	ReturnBuffer(oversized) // must not panic; pool silently discards it
}

func TestGetBuilderResetsPriorContent(t *testing.T) {
	b := GetBuilder()
	b.WriteString("leftover")
	ReturnBuilder(b)

	next := GetBuilder()
	if next.Len() != 0 {
		t.Fatalf("GetBuilder() after Return has length %d, want 0", next.Len())
	}
}

func TestReturnBuilderDropsOversizedBuilders(t *testing.T) {
	b := GetBuilder()
	b.Grow(maxPooledBuilderBytes + 1)
	ReturnBuilder(b) // must not panic; pool silently discards it
}
