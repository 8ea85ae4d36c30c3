package coordinator

// join collects boolean results and reports their AND once every added
// branch has settled and the join is sealed. It is confined to the work
// queue, like everything that resolves it.
type join struct {
	pending int
	ok      bool
	sealed  bool
	fired   bool
	done    func(bool)
}

func newJoin(done func(bool)) *join {
	return &join{ok: true, done: done}
}

// add opens a branch and returns its one-shot completion.
func (j *join) add() func(bool) {
	j.pending++
	settled := false
	return func(ok bool) {
		if settled {
			return
		}
		settled = true
		if !ok {
			j.ok = false
		}
		j.pending--
		j.fire()
	}
}

// seal marks that no more branches will be added. A join sealed with no
// branches reports true.
func (j *join) seal() {
	j.sealed = true
	j.fire()
}

func (j *join) fire() {
	if j.sealed && j.pending == 0 && !j.fired {
		j.fired = true
		j.done(j.ok)
	}
}
