package artifact

import "testing"

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		shape string
		sizes []int
		seed  int64
		want  string
	}{
		{"maze rectangle", KindMaze, "rectangle", []int{20, 15}, 123, "Map_maze_rectangle_20_15_123.svg"},
		{"solution rectangle", KindSolution, "rectangle", []int{20, 15}, 123, "Sol_maze_rectangle_20_15_123.svg"},
		{"distance rectangle", KindDistance, "rectangle", []int{20, 15}, 123, "Dist_maze_rectangle_20_15_123.svg"},
		{"single size value", KindMaze, "square", []int{12}, 7, "Map_maze_square_12_7.svg"},
		{"negative seed", KindMaze, "square", []int{12}, -5, "Map_maze_square_12_-5.svg"},
		{"large seed", KindDistance, "cross", []int{9}, 999999, "Dist_maze_cross_9_999999.svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.kind, tt.shape, tt.sizes, tt.seed)
			if got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNameEmbedsSeedUniquely(t *testing.T) {
	seen := make(map[string]bool)
	for seed := int64(1); seed <= 50; seed++ {
		for _, kind := range Kinds {
			n := Name(kind, "rectangle", []int{10, 10}, seed)
			if seen[n] {
				t.Fatalf("duplicate artifact name %q", n)
			}
			seen[n] = true
		}
	}
}

func TestKindIsValid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindMaze, true},
		{KindSolution, true},
		{KindDistance, true},
		{Kind("map"), false},
		{Kind(""), false},
	}

	for _, tt := range tests {
		if got := tt.kind.IsValid(); got != tt.want {
			t.Errorf("Kind(%q).IsValid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"maze", KindMaze, false},
		{"Solution", KindSolution, false},
		{" distance ", KindDistance, false},
		{"MAZE", KindMaze, false},
		{"path", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseKind(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestKindPrefix(t *testing.T) {
	if got := KindMaze.Prefix(); got != "Map" {
		t.Errorf("KindMaze.Prefix() = %q, want %q", got, "Map")
	}
	if got := KindSolution.Prefix(); got != "Sol" {
		t.Errorf("KindSolution.Prefix() = %q, want %q", got, "Sol")
	}
	if got := KindDistance.Prefix(); got != "Dist" {
		t.Errorf("KindDistance.Prefix() = %q, want %q", got, "Dist")
	}
}
