package hit

import (
	"strings"

	"github.com/inodb/vibe-gemoma/internal/align"
)

// SplitAtStops partitions a hit at stop codons of the target that are not
// aligned to a stop of the query. Gap columns at both ends of every piece
// are trimmed, pieces are rescored and only pieces with positive score are
// returned. A hit without such a stop is returned unchanged. Returned pieces
// carry ID 0; callers assign identifiers.
func SplitAtStops(h Hit, costs align.Costs) []Hit {
	idx := strings.IndexByte(h.TargetAlign, '*')
	if idx < 0 || h.QueryAlign[idx] == '*' {
		return []Hit{h}
	}

	var pieces []Hit
	qStart, tStart := h.QueryStart, h.Start
	old := 0
	for {
		var f, a, b int
		if idx < 0 {
			f = len(h.TargetAlign)
		} else {
			f = idx
			switch h.QueryAlign[idx] {
			case '*':
				f++
			case '-':
				a = 1
			default:
				a, b = 1, 1
			}
		}

		if f > old {
			t, q := h.TargetAlign[old:f], h.QueryAlign[old:f]

			off1, oq1 := 0, 0
			for off1 < len(t) && (t[off1] == '-' || q[off1] == '-') {
				if q[off1] == '-' {
					oq1++
				}
				off1++
			}
			off2, oq2, n := len(t)-1, 0, 0
			for off2 >= 0 && (t[off2] == '-' || q[off2] == '-') {
				if q[off2] == '-' {
					oq2++
				}
				n++
				off2--
			}
			off2++

			if off1 > off2 {
				qStart += len(q) - gaps(q) + b
				tStart += 3 * (len(t) - gaps(t) + a)
			} else {
				q, t = q[off1:off2], t[off1:off2]
				qg, tg := gaps(q), gaps(t)
				if sc := align.Score(costs, q, t); sc > 0 {
					p := h
					p.ID = 0
					p.QueryStart = qStart + off1 - oq1
					p.QueryEnd = p.QueryStart + len(q) - qg - 1
					p.Start = tStart + 3*oq1
					p.End = p.Start + 3*(len(t)-tg) - 1
					p.Score = sc
					p.QueryAlign, p.TargetAlign = q, t
					p.Info = h.Info + "split by '*';"
					pieces = append(pieces, p)
				}
				qStart += off1 - oq1 + len(q) - qg + n - oq2 + b
				tStart += 3 * (oq1 + len(t) - tg + oq2 + a)
			}
		} else {
			// consecutive stops
			qStart += b
			tStart += 3 * a
		}

		if idx < 0 {
			break
		}
		old = idx + 1
		if next := strings.IndexByte(h.TargetAlign[old:], '*'); next >= 0 {
			idx = old + next
		} else {
			idx = -1
		}
	}
	return pieces
}

func gaps(s string) int {
	return strings.Count(s, "-")
}
