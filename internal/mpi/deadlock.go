package mpi

// checkForDeadlock runs before p parks waiting on other. It fails when other
// is parked inside a collective, or when the blocked-for chain starting at
// other leads back to p. mu must be held.
//
// The chain walk is bounded by the World size, so a corrupted chain cannot
// loop forever.
func (p *Proc) checkForDeadlock(other *Proc, send bool) error {
	w := p.world
	op := "MPI_Recv"
	if send {
		op = "MPI_Send"
	}

	if other == p {
		return w.report(newError(ErrCodeDeadlock, p.rank,
			"Process %d cannot do a blocking %s with itself", p.rank, op))
	}

	if c := other.blockedForCollective; c != nil {
		return w.report(newError(ErrCodeDeadlock, p.rank,
			"Process %d cannot do a %s with process %d because that process is in a %s",
			p.rank, op, other.rank, c.kind))
	}

	n := len(w.procs)
	cycle := false
	for x, i := other, 0; x != nil && i < n; x, i = x.blockedFor, i+1 {
		if x.blockedFor == p {
			cycle = true
			break
		}
	}
	if !cycle {
		return nil
	}

	e := newError(ErrCodeDeadlock, p.rank,
		"Deadlock detected: attempting to add an %s between processes %d and %d", op, p.rank, other.rank)
	e.Chain = append(e.Chain, p.statusLines()...)
	for x, i := other, 0; x != nil && i < n; x, i = x.blockedFor, i+1 {
		e.Chain = append(e.Chain, x.statusLines()...)
		if x.blockedFor == p {
			break
		}
	}
	return w.report(e)
}
