package games_test

import (
	"errors"
	"testing"

	"casino-core/internal/service/games"
	appErr "casino-core/pkg/errors"
)

func TestNewMinesPlacement(t *testing.T) {
	src := &scripted{ints: []int{0, 0, 0}}
	st, err := games.NewMines(3, src)
	if err != nil {
		t.Fatalf("new mines failed: %v", err)
	}
	if st.GridSize != 25 || st.Mines != 3 || len(st.MineCells) != 3 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.MultiplierX100 != 100 {
		t.Fatalf("expected starting multiplier 1.00, got %d", st.MultiplierX100)
	}

	seen := map[int]bool{}
	for _, c := range st.MineCells {
		if c < 0 || c >= st.GridSize {
			t.Fatalf("mine out of range: %d", c)
		}
		if seen[c] {
			t.Fatalf("duplicate mine cell: %d", c)
		}
		seen[c] = true
	}
}

func TestNewMinesRejectsBadCounts(t *testing.T) {
	for _, n := range []int{0, -1, 25, 30} {
		if _, err := games.NewMines(n, &scripted{}); !errors.Is(err, appErr.ErrInvalidChoice) {
			t.Fatalf("count %d: expected invalid choice, got: %v", n, err)
		}
	}
}

func TestRevealSafeCellGrowsMultiplier(t *testing.T) {
	st := &games.MinesState{
		GridSize:       25,
		Mines:          3,
		MineCells:      []int{0, 1, 2},
		Opened:         []int{},
		MultiplierX100: 100,
	}

	hit, err := st.Reveal(10, 500)
	if err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if hit {
		t.Fatalf("cell 10 is safe")
	}
	// (1-0.05) * 25/22 = 1.0795...
	if st.MultiplierX100 != 107 {
		t.Fatalf("expected multiplier 107 after one pick, got %d", st.MultiplierX100)
	}

	hit, err = st.Reveal(11, 500)
	if err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	// (1-0.05) * (25*24)/(22*21) = 1.2337...
	if hit || st.MultiplierX100 != 123 {
		t.Fatalf("expected multiplier 123 after two picks, got hit=%v mult=%d", hit, st.MultiplierX100)
	}
}

func TestRevealHazardZeroesMultiplier(t *testing.T) {
	st := &games.MinesState{
		GridSize:       25,
		Mines:          1,
		MineCells:      []int{5},
		Opened:         []int{},
		MultiplierX100: 100,
	}

	hit, err := st.Reveal(5, 500)
	if err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if !hit || st.MultiplierX100 != 0 {
		t.Fatalf("expected bust with zero multiplier, got hit=%v mult=%d", hit, st.MultiplierX100)
	}
}

func TestRevealOpenCellIsIdempotent(t *testing.T) {
	st := &games.MinesState{
		GridSize:       25,
		Mines:          3,
		MineCells:      []int{0, 1, 2},
		Opened:         []int{},
		MultiplierX100: 100,
	}

	if _, err := st.Reveal(10, 500); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	before := st.MultiplierX100

	hit, err := st.Reveal(10, 500)
	if err != nil {
		t.Fatalf("repeat reveal failed: %v", err)
	}
	if hit || st.MultiplierX100 != before || len(st.Opened) != 1 {
		t.Fatalf("repeat reveal mutated state: hit=%v mult=%d opened=%v", hit, st.MultiplierX100, st.Opened)
	}
}

func TestRevealOutOfRange(t *testing.T) {
	st := &games.MinesState{GridSize: 25, Mines: 1, MineCells: []int{0}, Opened: []int{}}
	for _, cell := range []int{-1, 25, 100} {
		if _, err := st.Reveal(cell, 500); !errors.Is(err, appErr.ErrInvalidChoice) {
			t.Fatalf("cell %d: expected invalid choice, got: %v", cell, err)
		}
	}
}

func TestMinesMultiplierNeverBelowEven(t *testing.T) {
	// Heavy edge and few mines: the raw product dips under 1.00 and clamps.
	st := &games.MinesState{
		GridSize:       25,
		Mines:          3,
		MineCells:      []int{0, 1, 2},
		Opened:         []int{},
		MultiplierX100: 100,
	}
	if _, err := st.Reveal(10, 1800); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if st.MultiplierX100 < 100 {
		t.Fatalf("multiplier fell below 1.00: %d", st.MultiplierX100)
	}
}
