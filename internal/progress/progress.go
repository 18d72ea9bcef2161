// Package progress provides a transparent io.Reader wrapper that reports
// percentage milestones as bytes flow through it.
package progress

import "io"

// Func receives a progress event. current and total are in bytes.
type Func func(percent int, current, total int64)

// Reader counts bytes read from the wrapped reader and calls the emit func
// whenever the completed percentage rises past the last reported mark. Data
// and errors from the wrapped reader pass through verbatim; no buffering.
type Reader struct {
	r       io.Reader
	total   int64
	step    int
	current int64
	lastPct int
	emit    Func
}

// NewReader wraps r, whose total length is known. step is the minimum
// percentage increase between events; values below 1 are treated as 1.
// When total is 0 no events are emitted.
func NewReader(r io.Reader, total int64, step int, emit Func) *Reader {
	if step < 1 {
		step = 1
	}
	return &Reader{r: r, total: total, step: step, emit: emit}
}

func (p *Reader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.current += int64(n)

	if p.total > 0 && p.emit != nil {
		pct := int(p.current * 100 / p.total)
		// Completion always reports, whatever the step.
		if pct >= p.lastPct+p.step || (pct >= 100 && p.lastPct < 100) {
			p.lastPct = pct
			p.emit(pct, p.current, p.total)
		}
	}

	return n, err
}

// Current returns the number of bytes read so far.
func (p *Reader) Current() int64 { return p.current }
