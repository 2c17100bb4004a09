package host

import (
	"slices"
	"testing"
)

func TestDispatcherRunsInOrderAndDrainsOnClose(t *testing.T) {
	d := newDispatcher("test", quietLogger())
	var got []int
	for i := range 100 {
		if !d.post(func() { got = append(got, i) }) {
			t.Fatalf("post(%d) rejected before close", i)
		}
	}
	d.post(func() { panic("handler bug") })
	d.post(func() { got = append(got, 100) })
	d.close()
	<-d.done

	if d.post(func() {}) {
		t.Error("post() accepted after close")
	}
	want := make([]int, 101)
	for i := range want {
		want[i] = i
	}
	if !slices.Equal(got, want) {
		t.Errorf("ran %v, want 0..100 in order", got)
	}
}
