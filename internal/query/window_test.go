package query

import (
	"math"
	"testing"
)

func intPtr(i int) *int { return &i }

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		skip      int
		top       *int
		wantStart int
		wantEnd   int
		wantMore  bool
	}{
		{name: "no window", total: 3, wantStart: 0, wantEnd: 3},
		{name: "middle row", total: 3, skip: 1, top: intPtr(1), wantStart: 1, wantEnd: 2, wantMore: true},
		{name: "top zero", total: 3, top: intPtr(0), wantStart: 0, wantEnd: 0, wantMore: true},
		{name: "last page", total: 3, skip: 2, top: intPtr(2), wantStart: 2, wantEnd: 3},
		{name: "skip past end", total: 3, skip: 10, wantStart: 3, wantEnd: 3},
		{name: "empty", total: 0, top: intPtr(0), wantStart: 0, wantEnd: 0},
		{name: "huge top after skip", total: 3, skip: 1, top: intPtr(math.MaxInt), wantStart: 1, wantEnd: 3},
		{name: "huge skip", total: 3, skip: math.MaxInt, top: intPtr(math.MaxInt), wantStart: 3, wantEnd: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, more := Window(tt.total, tt.skip, tt.top)
			if start != tt.wantStart || end != tt.wantEnd || more != tt.wantMore {
				t.Errorf("Window(%d, %d, %v) = (%d, %d, %v), want (%d, %d, %v)",
					tt.total, tt.skip, tt.top, start, end, more, tt.wantStart, tt.wantEnd, tt.wantMore)
			}
		})
	}
}
