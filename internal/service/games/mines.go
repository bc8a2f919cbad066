package games

import (
	"fmt"

	appErr "casino-core/pkg/errors"
	"casino-core/pkg/utils/random"
)

const minesGridSize = 25

// MinesState is the persisted state of one mines session. The multiplier
// grows with each safe reveal; hitting a hazard ends the bet as lost with
// zero payout.
type MinesState struct {
	GridSize       int   `json:"gridSize"`
	Mines          int   `json:"mines"`
	MineCells      []int `json:"mineCells"`
	Opened         []int `json:"opened"`
	MultiplierX100 int64 `json:"multiplierX100"`
}

// NewMines places mines on the grid using the random source.
func NewMines(minesCount int, src random.Source) (*MinesState, error) {
	if minesCount < 1 || minesCount >= minesGridSize {
		return nil, fmt.Errorf("%w: mines count %d", appErr.ErrInvalidChoice, minesCount)
	}

	// Partial Fisher-Yates: the first minesCount slots of a shuffled grid.
	cells := make([]int, minesGridSize)
	for i := range cells {
		cells[i] = i
	}
	for i := 0; i < minesCount; i++ {
		j := i + src.Intn(minesGridSize-i)
		cells[i], cells[j] = cells[j], cells[i]
	}

	return &MinesState{
		GridSize:       minesGridSize,
		Mines:          minesCount,
		MineCells:      append([]int(nil), cells[:minesCount]...),
		Opened:         []int{},
		MultiplierX100: 100,
	}, nil
}

// Reveal opens one cell. Returns hit=true when the cell hides a hazard, in
// which case the multiplier drops to zero and the session is over. Revealing
// an already-open cell changes nothing.
func (st *MinesState) Reveal(cell int, edgeBP int64) (hit bool, err error) {
	if cell < 0 || cell >= st.GridSize {
		return false, fmt.Errorf("%w: cell %d", appErr.ErrInvalidChoice, cell)
	}
	for _, c := range st.Opened {
		if c == cell {
			return false, nil
		}
	}

	st.Opened = append(st.Opened, cell)
	for _, m := range st.MineCells {
		if m == cell {
			st.MultiplierX100 = 0
			return true, nil
		}
	}

	st.MultiplierX100 = minesMultiplierX100(edgeBP, st.GridSize, st.Mines, len(st.Opened))
	return false, nil
}

// minesMultiplierX100 is the cash-out multiplier after picks safe reveals:
// (1 - edge) * C(grid, picks) / C(grid - mines, picks), the inverse survival
// probability scaled to the target edge. Fixed to hundredths, floor of 1.00.
func minesMultiplierX100(edgeBP int64, grid, mines, picks int) int64 {
	fair := 1.0
	for i := 0; i < picks; i++ {
		fair *= float64(grid-i) / float64(grid-mines-i)
	}
	mult := int64(fair * float64(10000-edgeBP) / 100.0)
	if mult < 100 {
		mult = 100
	}
	return mult
}
