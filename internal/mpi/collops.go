package mpi

// Bcast copies count elements of the root's buf into every other
// participant's buf.
func (p *Proc) Bcast(buf any, count int, dt Datatype, root int, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	rootProc, errRoot := p.peer(root)
	conn, errConn := p.newConn(buf, count, false)
	errType := p.expectType(conn, dt, "Broadcasting")
	if errType != nil {
		conn = nil
	}

	errJoin := p.joinCollective(CollBcast, 0, rootProc, conn, nil, Running)
	return firstErr(errState, errComm, errRoot, errConn, errType, errJoin)
}

// Reduce folds every participant's send buffer with op into the root's recv
// buffer. recv is only written at the root.
func (p *Proc) Reduce(send, recv any, count int, dt Datatype, op ReduceOp, root int, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	rootProc, errRoot := p.peer(root)
	sConn, dConn, errConn := p.pairConns(send, count, dt, recv, count, dt)

	errJoin := p.joinCollective(CollReduce, op, rootProc, sConn, dConn, Running)
	return firstErr(errState, errComm, errRoot, errConn, errJoin)
}

// Allreduce is Reduce followed by a copy of the result into every
// participant's recv buffer.
func (p *Proc) Allreduce(send, recv any, count int, dt Datatype, op ReduceOp, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	sConn, dConn, errConn := p.pairConns(send, count, dt, recv, count, dt)

	errJoin := p.joinCollective(CollReduceAll, op, nil, sConn, dConn, Running)
	return firstErr(errState, errComm, errConn, errJoin)
}

// Scatter hands participant i the i-th block of recvCount elements of the
// root's send buffer.
func (p *Proc) Scatter(send any, sendCount int, sendType Datatype, recv any, recvCount int, recvType Datatype, root int, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	rootProc, errRoot := p.peer(root)
	sConn, dConn, errConn := p.pairConns(send, sendCount, sendType, recv, recvCount, recvType)

	// Only the root's buffers are sized here; other participants' are
	// checked when the blocks are copied.
	var errCap error
	if sConn != nil && rootProc == p {
		step := sConn.Count()
		if dConn != nil {
			step = dConn.Count()
		}
		errCap = p.expectCapacity(sConn, step, "Scatter source")
	}

	errJoin := p.joinCollective(CollScatter, 0, rootProc, sConn, dConn, Running)
	return firstErr(errState, errComm, errRoot, errConn, errCap, errJoin)
}

// Gather collects sendCount elements from every participant into the root's
// recv buffer, in rank order.
func (p *Proc) Gather(send any, sendCount int, sendType Datatype, recv any, recvCount int, recvType Datatype, root int, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	rootProc, errRoot := p.peer(root)
	sConn, dConn, errConn := p.pairConns(send, sendCount, sendType, recv, recvCount, recvType)

	// Only the root's buffers are sized here; other participants' are
	// checked when the blocks are copied.
	var errCap error
	if dConn != nil && rootProc == p {
		errCap = p.expectCapacity(dConn, dConn.Count(), "Gather destination")
	}

	errJoin := p.joinCollective(CollGather, 0, rootProc, sConn, dConn, Running)
	return firstErr(errState, errComm, errRoot, errConn, errCap, errJoin)
}

// Allgather is Gather into every participant's recv buffer.
func (p *Proc) Allgather(send any, sendCount int, sendType Datatype, recv any, recvCount int, recvType Datatype, comm Comm) error {
	p.world.checkAborted(p.rank)

	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	sConn, dConn, errConn := p.pairConns(send, sendCount, sendType, recv, recvCount, recvType)

	var errCap error
	if dConn != nil {
		errCap = p.expectCapacity(dConn, dConn.Count(), "Allgather destination")
	}

	errJoin := p.joinCollective(CollGatherAll, 0, nil, sConn, dConn, Running)
	return firstErr(errState, errComm, errConn, errCap, errJoin)
}

// pairConns builds the send and recv connections of a two-buffer collective.
// A connection whose buffer does not match its declared type is dropped so
// the collective skips it.
func (p *Proc) pairConns(send any, sendCount int, sendType Datatype, recv any, recvCount int, recvType Datatype) (*Conn, *Conn, error) {
	sConn, errS := p.newConn(send, sendCount, false)
	if err := p.expectType(sConn, sendType, "Sending"); err != nil {
		sConn, errS = nil, firstErr(errS, err)
	}
	dConn, errD := p.newConn(recv, recvCount, false)
	if err := p.expectType(dConn, recvType, "Receiving"); err != nil {
		dConn, errD = nil, firstErr(errD, err)
	}
	return sConn, dConn, firstErr(errS, errD)
}

// expectCapacity checks that c's buffer holds one block of step elements
// per participant.
func (p *Proc) expectCapacity(c *Conn, step int, what string) error {
	need := len(p.world.procs) * step
	if have := c.ActualLength(); have < need {
		return p.world.report(newError(ErrCodeCapacity, p.rank,
			"The %s array should have size %d but has size %d", what, need, have))
	}
	return nil
}
