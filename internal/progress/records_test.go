package progress_test

import (
	"testing"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

func TestPassThreshold(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 1},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
		{20, 14},
	}
	for _, tt := range tests {
		if got := progress.PassThreshold(tt.total); got != tt.want {
			t.Errorf("PassThreshold(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestStageStart(t *testing.T) {
	tests := []struct {
		part int
		want int
	}{
		{0, 0}, {3, 0}, {4, 4}, {7, 4}, {8, 8}, {11, 8}, {12, 8},
	}
	for _, tt := range tests {
		if got := progress.StageStart(tt.part); got != tt.want {
			t.Errorf("StageStart(%d) = %d, want %d", tt.part, got, tt.want)
		}
	}
}

func TestIsGated(t *testing.T) {
	for i := 0; i < 13; i++ {
		want := i == 3 || i == 7 || i == 11
		if got := progress.IsGated(i); got != want {
			t.Errorf("IsGated(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestStoryProgress_NavigableLimit(t *testing.T) {
	tests := []struct {
		name      string
		completed []int
		total     int
		want      int
	}{
		{"fresh", []int{}, 13, 0},
		{"first three done", []int{0, 1, 2}, 13, 3},
		{"gap", []int{0, 1, 3}, 13, 2},
		{"all done", []int{0, 1, 2}, 3, 2},
		{"empty story", nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := progress.StoryProgress{CompletedParts: tt.completed}
			if got := p.NavigableLimit(tt.total); got != tt.want {
				t.Errorf("NavigableLimit(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}
