package accum

import (
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Contingency family name.
const NameContingency = "contingency"

// bytesPerCell is the packing estimate per contingency cell.
const bytesPerCell = 16

// assumedDomainSize is the per-axis domain estimate used for chunk packing
// when domains are not supplied in advance.
const assumedDomainSize = 256

// Stratified is implemented by accumulators that also consume a second
// (stratification) column. The feeder pairs both cells of a row before
// moving on, which is why chunks containing stratified instances are
// always fed row-wise.
type Stratified interface {
	StratifierColumn() int
	AcceptStratifier(rowIndex int, v value.Value) error
}

// ContingencyTable is the structured result of the contingency family:
// category domains for both axes plus the full cross-product of cell
// counts, zero cells included.
type ContingencyTable struct {
	Domain           []string
	StratifierDomain []string
	Cells            map[string]map[string]int64
}

// Contingency fills a contingency table over (column, stratifier column).
// With both domains supplied in parameters a single counting pass
// suffices; otherwise pass 1 enumerates the two category domains and pass
// 2 fills cell counts.
//
// Missing policy: a row contributes only when both cells are present;
// rows with an absent cell on either axis are excluded.
type Contingency struct {
	passTracker
	column     int
	stratifier int

	domainGiven bool
	domain      map[string]struct{}
	stratDomain map[string]struct{}
	cells       map[string]map[string]int64

	pendingRow   int
	primary      value.Value
	strat        value.Value
	havePrimary  bool
	haveStrat    bool
	countingPass bool
}

// NewContingency creates a Contingency accumulator over the request's
// column and its Stratifier parameter.
func NewContingency(column int, params Params) *Contingency {
	domainGiven := len(params.Domain) > 0 && len(params.StratifierDomain) > 0
	passes := 2

	if domainGiven {
		passes = 1
	}

	c := &Contingency{
		passTracker: newPassTracker(passes),
		column:      column,
		stratifier:  params.Stratifier,
		domainGiven: domainGiven,
		domain:      make(map[string]struct{}),
		stratDomain: make(map[string]struct{}),
		pendingRow:  -1,
	}

	if domainGiven {
		for _, d := range params.Domain {
			c.domain[d] = struct{}{}
		}

		for _, d := range params.StratifierDomain {
			c.stratDomain[d] = struct{}{}
		}

		c.initCells()
	}

	return c
}

func (c *Contingency) initCells() {
	c.cells = make(map[string]map[string]int64, len(c.domain))
	for d := range c.domain {
		row := make(map[string]int64, len(c.stratDomain))
		for s := range c.stratDomain {
			row[s] = 0
		}

		c.cells[d] = row
	}
}

// Name returns the registered producer name.
func (c *Contingency) Name() string { return NameContingency }

// Column returns the bound (primary) column index.
func (c *Contingency) Column() int { return c.column }

// StratifierColumn returns the stratification column index.
func (c *Contingency) StratifierColumn() int { return c.stratifier }

// RequiredPasses returns 1 with supplied domains, 2 otherwise.
func (c *Contingency) RequiredPasses() int { return c.required }

// SizeHint estimates the cell matrix.
func (c *Contingency) SizeHint() int64 {
	rows, cols := len(c.domain), len(c.stratDomain)
	if rows == 0 {
		rows = assumedDomainSize
	}

	if cols == 0 {
		cols = assumedDomainSize
	}

	return int64(rows) * int64(cols) * bytesPerCell
}

// StartPass opens the given pass. The counting pass is the only pass when
// domains were supplied, the second pass otherwise.
func (c *Contingency) StartPass(pass int) error {
	if err := c.start(pass); err != nil {
		return err
	}

	c.countingPass = c.domainGiven || pass == 2
	if c.countingPass && c.cells == nil {
		c.initCells()
	}

	c.resetRow()

	return nil
}

func (c *Contingency) resetRow() {
	c.pendingRow = -1
	c.havePrimary = false
	c.haveStrat = false
}

// Accept consumes the primary column's cell for a row.
func (c *Contingency) Accept(rowIndex int, v value.Value) error {
	if err := c.accepting(); err != nil {
		return err
	}

	if rowIndex != c.pendingRow {
		c.resetRow()
		c.pendingRow = rowIndex
	}

	c.primary = v
	c.havePrimary = true
	c.tryConsumeRow()

	return nil
}

// AcceptStratifier consumes the stratification column's cell for a row.
func (c *Contingency) AcceptStratifier(rowIndex int, v value.Value) error {
	if err := c.accepting(); err != nil {
		return err
	}

	if rowIndex != c.pendingRow {
		c.resetRow()
		c.pendingRow = rowIndex
	}

	c.strat = v
	c.haveStrat = true
	c.tryConsumeRow()

	return nil
}

// tryConsumeRow records the pair once both cells of the row have arrived.
func (c *Contingency) tryConsumeRow() {
	if !c.havePrimary || !c.haveStrat {
		return
	}

	defer c.resetRow()

	if c.primary.IsAbsent() || c.strat.IsAbsent() {
		return
	}

	d := c.primary.Display()
	s := c.strat.Display()

	if !c.countingPass {
		c.domain[d] = struct{}{}
		c.stratDomain[s] = struct{}{}

		return
	}

	row, ok := c.cells[d]
	if !ok {
		// Category outside the declared or enumerated domain; dropped.
		return
	}

	if _, ok := row[s]; !ok {
		return
	}

	row[s]++
}

// EndPass closes the current pass.
func (c *Contingency) EndPass() { c.end() }

// IsComplete reports whether all required passes have ended.
func (c *Contingency) IsComplete() bool { return c.isComplete() }

// Finalize returns the contingency table with sorted domains.
func (c *Contingency) Finalize() (Result, error) {
	if err := c.finalizeReady(); err != nil {
		return nil, err
	}

	table := ContingencyTable{
		Domain:           sortedKeys(c.domain),
		StratifierDomain: sortedKeys(c.stratDomain),
		Cells:            c.cells,
	}

	if table.Cells == nil {
		c.initCells()
		table.Cells = c.cells
	}

	return Result{StatContingency: table}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
