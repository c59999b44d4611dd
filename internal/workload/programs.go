package workload

import (
	"fmt"
	"image/color"

	"github.com/roach88/mpisim/internal/mpi"
)

// Sample is the demonstration program: a chain of sends from each rank to
// the next, then one of each collective, with ranks 0 and 1 drawing into a
// view. It needs no particular World size.
func Sample(env Env) mpi.Program {
	return mpi.ProgramFunc(func(p *mpi.Proc) error {
		_ = p.Init()
		rank, _ := p.CommRank(mpi.CommWorld)
		size, _ := p.CommSize(mpi.CommWorld)

		n := max(4, size)
		data1 := make([]int, n)
		data2 := make([]int, n)
		data1[0] = 213*rank + 524

		switch rank {
		case 0:
			v := p.CreateView(10, 10, 300, 200)
			v.BeginScene()
			v.Box(color.Black, 0.25, 0.25, 0.66, 0.66)
			v.EndScene()
		case 1:
			v := p.CreateView(310, 10, 300, 200)
			v.BeginScene()
			v.Text(color.Black, 0.3, 0.4, 0.16, "Hi")
			v.EndScene()
		}

		var status mpi.Status
		if rank > 0 {
			_ = p.Recv(data2, 1, mpi.Int, rank-1, 0, mpi.CommWorld, &status)
			fmt.Fprintf(env.Out, "Node %d received %d\n", rank, data2[0])
		}
		if rank < size-1 {
			_ = p.Send(data1, 1, mpi.Int, rank+1, 0, mpi.CommWorld)
		}

		_ = p.Barrier()

		if rank == 0 {
			data1[0] = 7132
			data1[1] = 4353
		}
		_ = p.Bcast(data1, 2, mpi.Int, 0, mpi.CommWorld)
		if rank != 0 {
			fmt.Fprintf(env.Out, "Bcast: process %d received %d, %d\n", rank, data1[0], data1[1])
		}

		_ = p.Allreduce(data2, data1, 1, mpi.Int, mpi.Sum, mpi.CommWorld)
		fmt.Fprintf(env.Out, "Allreduce for %d returned %d\n", rank, data1[0])

		for i := range data1 {
			data1[i] = 111 * (i + 1)
		}
		_ = p.Scatter(data1, 1, mpi.Int, data2, 1, mpi.Int, 0, mpi.CommWorld)
		fmt.Fprintf(env.Out, "Scatter for %d returned %d\n", rank, data2[0])

		data1[0] = rank
		_ = p.Allgather(data1, 1, mpi.Int, data2, 1, mpi.Int, mpi.CommWorld)
		fmt.Fprintf(env.Out, "Allgather for %d returned %v\n", rank, data2[:size])

		env.Logger.Debug("sample finished", "rank", rank)
		_ = p.Finalize()
		p.DestroyView()
		return nil
	})
}

// Ring passes a token around the ring of ranks. Every rank adds its own
// rank, so rank 0 ends up with size*(size-1)/2.
func Ring(env Env) mpi.Program {
	return mpi.ProgramFunc(func(p *mpi.Proc) error {
		_ = p.Init()
		rank, size := p.Rank(), p.World().Size()
		next, prev := (rank+1)%size, (rank+size-1)%size

		token := []int{0}
		if rank == 0 {
			// Isend so a single-rank ring can message itself.
			_ = p.Isend(token, 1, mpi.Int, next, 0, mpi.CommWorld)
			_ = p.Recv(token, 1, mpi.Int, prev, 0, mpi.CommWorld, nil)
			fmt.Fprintf(env.Out, "Ring: token returned to 0 with %d\n", token[0])
		} else {
			_ = p.Recv(token, 1, mpi.Int, prev, 0, mpi.CommWorld, nil)
			token[0] += rank
			_ = p.Send(token, 1, mpi.Int, next, 0, mpi.CommWorld)
		}

		env.Logger.Debug("ring finished", "rank", rank, "token", token[0])
		_ = p.Finalize()
		return nil
	})
}

// Idle initializes and finalizes without communicating.
func Idle(Env) mpi.Program {
	return mpi.ProgramFunc(func(p *mpi.Proc) error {
		_ = p.Init()
		_ = p.Finalize()
		return nil
	})
}
