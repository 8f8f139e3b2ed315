package gpu

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

type hostKernel struct {
	dev      *HostDevice
	name     string
	options  string
	fn       HostKernelFunc
	args     []hostArg
	released bool
}

func (k *hostKernel) Name() string { return k.name }

func (k *hostKernel) checkIndex(index int) error {
	if k.released {
		return ErrReleased
	}
	if index < 0 || index >= len(k.args) {
		return errors.Errorf("kernel %s: invalid arg index %d (kernel takes %d)", k.name, index, len(k.args))
	}
	return nil
}

func (k *hostKernel) SetArgMem(index int, m Mem) error {
	if err := k.checkIndex(index); err != nil {
		return err
	}
	hm, err := k.dev.own(m)
	if err != nil {
		return errors.WithMessagef(err, "kernel %s: arg %d", k.name, index)
	}
	k.args[index] = hostArg{mem: hm, set: true}
	return nil
}

func (k *hostKernel) SetArgBytes(index int, value []byte) error {
	if err := k.checkIndex(index); err != nil {
		return err
	}
	k.args[index] = hostArg{scalar: append([]byte(nil), value...), set: true}
	return nil
}

func (k *hostKernel) Release() error {
	if k.released {
		return ErrReleased
	}
	k.released = true
	k.args = nil
	return nil
}

// launch describes one NDRange in normalized form.
type launch struct {
	dims   int
	global [maxWorkDims]int
	local  [maxWorkDims]int
	groups [maxWorkDims]int
}

func (l launch) numGroups() int {
	n := 1
	for d := 0; d < maxWorkDims; d++ {
		n *= l.groups[d]
	}
	return n
}

func (k *hostKernel) plan(global, local []int64) (launch, error) {
	var l launch
	if len(global) == 0 || len(global) > maxWorkDims {
		return l, errors.Errorf("invalid work dimension %d", len(global))
	}
	if local != nil && len(local) != len(global) {
		return l, errors.Errorf("local work size has %d dimensions, global has %d", len(local), len(global))
	}

	l.dims = len(global)
	groupSize := int64(1)
	for d := 0; d < maxWorkDims; d++ {
		l.global[d], l.local[d], l.groups[d] = 1, 1, 1
		if d >= len(global) {
			continue
		}
		g := global[d]
		lo := int64(1)
		if local != nil {
			lo = local[d]
		}
		if g <= 0 || lo <= 0 {
			return l, errors.Errorf("invalid work size %d/%d in dimension %d", g, lo, d)
		}
		if g%lo != 0 {
			return l, errors.Errorf("global size %d not divisible by local size %d in dimension %d", g, lo, d)
		}
		groupSize *= lo
		l.global[d], l.local[d], l.groups[d] = int(g), int(lo), int(g/lo)
	}
	if groupSize > k.dev.cfg.MaxWorkGroupSize {
		return l, errors.Errorf("work-group size %d exceeds device maximum %d", groupSize, k.dev.cfg.MaxWorkGroupSize)
	}
	return l, nil
}

func (k *hostKernel) Enqueue(global, local []int64) error {
	if k.released {
		return ErrReleased
	}
	for i, a := range k.args {
		if !a.set {
			return errors.Wrapf(ErrInvalidArgs, "kernel %s: arg %d", k.name, i)
		}
		if a.mem != nil && a.mem.released {
			return errors.Wrapf(ErrReleased, "kernel %s: arg %d", k.name, i)
		}
	}

	l, err := k.plan(global, local)
	if err != nil {
		return errors.WithMessagef(err, "kernel %s", k.name)
	}

	args := Args{vals: k.args}
	total := l.numGroups()
	workers := k.dev.cfg.Workers
	if workers > total {
		workers = total
	}

	var (
		wg    sync.WaitGroup
		once  sync.Once
		fault error
	)
	next := make(chan int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { fault = fmt.Errorf("kernel %s: fault: %v", k.name, r) })
					for range next {
					}
				}
			}()
			for g := range next {
				k.runGroup(l, g, args)
			}
		}()
	}
	for g := 0; g < total; g++ {
		next <- g
	}
	close(next)
	wg.Wait()
	return fault
}

// runGroup executes every work item of the flat group index g in order.
func (k *hostKernel) runGroup(l launch, g int, args Args) {
	item := WorkItem{dims: l.dims, globalSize: l.global, localSize: l.local}
	item.group[0] = g % l.groups[0]
	item.group[1] = (g / l.groups[0]) % l.groups[1]
	item.group[2] = g / (l.groups[0] * l.groups[1])

	for z := 0; z < l.local[2]; z++ {
		for y := 0; y < l.local[1]; y++ {
			for x := 0; x < l.local[0]; x++ {
				item.local = [maxWorkDims]int{x, y, z}
				for d := 0; d < maxWorkDims; d++ {
					item.global[d] = item.group[d]*l.local[d] + item.local[d]
				}
				k.fn(item, args)
			}
		}
	}
}
