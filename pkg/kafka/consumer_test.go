package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestStartOffset(t *testing.T) {
	cases := []struct {
		reset string
		want  int64
	}{
		{"earliest", kafka.FirstOffset},
		{"latest", kafka.LastOffset},
		{"", kafka.FirstOffset},
		{"bogus", kafka.FirstOffset},
	}
	for _, c := range cases {
		if got := startOffset(c.reset); got != c.want {
			t.Errorf("startOffset(%q) = %d, want %d", c.reset, got, c.want)
		}
	}
}
