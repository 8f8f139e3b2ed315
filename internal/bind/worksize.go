package bind

// localCandidates is the preference order for derived local sizes.
var localCandidates = [...]int{7, 5, 4, 3, 2, 1}

// SetGlobalWorkSize sets the number of work items per dimension. A local
// size set earlier is checked against it at dispatch.
func (s *Session) SetGlobalWorkSize(dims ...int) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	const op = "set global work size"
	if err := s.check(op); err != nil {
		return err
	}
	if len(dims) == 0 {
		return newError(KindInvalidWorkSize, op, "at least one dimension required")
	}
	if err := checkPositive(op, dims); err != nil {
		return err
	}
	s.global = append([]int(nil), dims...)
	return nil
}

// SetLocalWorkSize sets the work-group size per dimension. Calling it
// without dimensions lets the device choose.
func (s *Session) SetLocalWorkSize(dims ...int) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	const op = "set local work size"
	if err := s.check(op); err != nil {
		return err
	}
	if len(dims) == 0 {
		s.local = nil
		return nil
	}
	if err := checkPositive(op, dims); err != nil {
		return err
	}
	if s.global != nil {
		if err := checkWorkSizes(op, s.global, dims); err != nil {
			return err
		}
	}
	s.local = append([]int(nil), dims...)
	return nil
}

// AutoLocalWorkSize derives the local size from the global one: each
// dimension gets the first of 7, 5, 4, 3, 2, 1 that divides it.
func (s *Session) AutoLocalWorkSize() ([]int, error) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	const op = "auto local work size"
	if err := s.check(op); err != nil {
		return nil, err
	}
	if s.global == nil {
		return nil, newError(KindWorkSizeNotSet, op, "set the global work size first")
	}
	s.local = deriveLocal(s.global)
	return append([]int(nil), s.local...), nil
}

func deriveLocal(global []int) []int {
	local := make([]int, len(global))
	for i, g := range global {
		for _, c := range localCandidates {
			if g%c == 0 {
				local[i] = c
				break
			}
		}
	}
	return local
}

// GlobalWorkSize returns a copy of the global size, or nil if unset.
func (s *Session) GlobalWorkSize() []int {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return append([]int(nil), s.global...)
}

// LocalWorkSize returns a copy of the local size, or nil if unset.
func (s *Session) LocalWorkSize() []int {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.local == nil {
		return nil
	}
	return append([]int(nil), s.local...)
}

func checkPositive(op string, dims []int) error {
	for i, d := range dims {
		if d <= 0 {
			return newError(KindInvalidWorkSize, op, "dimension %d is %d", i, d)
		}
	}
	return nil
}

func checkWorkSizes(op string, global, local []int) error {
	if len(local) != len(global) {
		return newError(KindDimensionMismatch, op, "local has %d dimensions, global has %d", len(local), len(global))
	}
	for i := range global {
		if global[i]%local[i] != 0 {
			return newError(KindIndivisibleWorkSize, op, "dimension %d: %d %% %d != 0", i, global[i], local[i])
		}
	}
	return nil
}
