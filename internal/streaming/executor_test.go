package streaming

// manualExecutor выполняет задачи в горутине теста.
// В режиме inline задача выполняется сразу при Submit,
// иначе: при вызове flush.
type manualExecutor struct {
	inline  bool
	limit   int // Емкость очереди (0 без ограничения)
	pending []Job
	done    []Result
	closed  bool
}

func (m *manualExecutor) Submit(job Job) bool {
	if m.closed || (m.limit > 0 && len(m.pending) >= m.limit) {
		return false
	}
	if m.inline {
		m.done = append(m.done, run(job))
		return true
	}
	m.pending = append(m.pending, job)
	return true
}

func (m *manualExecutor) Poll(max int) []Result {
	n := len(m.done)
	if max > 0 && max < n {
		n = max
	}
	out := append([]Result(nil), m.done[:n]...)
	m.done = m.done[n:]
	return out
}

func (m *manualExecutor) Close() { m.closed = true }

// flush выполняет отложенные задачи
func (m *manualExecutor) flush() int {
	n := len(m.pending)
	for _, job := range m.pending {
		m.done = append(m.done, run(job))
	}
	m.pending = nil
	return n
}

func run(job Job) Result {
	res := Result{Kind: job.Kind, Coord: job.Coord, Ticket: job.Ticket}
	job.Run(&res)
	return res
}
