package cdp

import "sync"

// workPool 固定数量的 worker 与有界等待队列
type workPool struct {
	tasks    chan func()
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// newWorkPool workers<=0 时返回 nil，调用方退化为每个事件一个 goroutine
func newWorkPool(workers, capacity int) *workPool {
	if workers <= 0 {
		return nil
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &workPool{
		tasks: make(chan func(), capacity),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.quit:
			return
		}
	}
}

// submit 队列已满或已停止时返回 false
func (p *workPool) submit(fn func()) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.tasks <- fn:
		return true
	default:
		return false
	}
}

// stop 停止所有 worker 并等待退出
func (p *workPool) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
