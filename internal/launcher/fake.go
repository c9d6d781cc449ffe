// ABOUTME: Deterministic in-memory Launcher for tests.
// ABOUTME: Scripted output lines and an optional forced failure stand in for a real process.
package launcher

import "sync"

// Fake is a deterministic in-memory Launcher for tests. Fail, when set,
// makes every Spawn return that error instead of creating a process.
type Fake struct {
	mu        sync.Mutex
	nextPID   int
	Fail      error
	Processes []*FakeProcess
}

func NewFake() *Fake {
	return &Fake{nextPID: 1000}
}

// Snapshot returns a safe-to-range-over copy of the processes spawned so
// far, for test goroutines that observe spawns concurrently with Spawn
// calls on another goroutine.
func (f *Fake) Snapshot() []*FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeProcess(nil), f.Processes...)
}

func (f *Fake) Spawn(req SpawnRequest) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return nil, f.Fail
	}
	f.nextPID++
	p := &FakeProcess{
		pid:    f.nextPID,
		lines:  make(chan string, 256),
		waitCh: make(chan int, 1),
	}
	f.Processes = append(f.Processes, p)
	return p, nil
}

// FakeProcess is a controllable fake child process for supervisor tests.
type FakeProcess struct {
	pid      int
	lines    chan string
	waitCh   chan int
	mu       sync.Mutex
	written  []string
	signaled bool
	killed   bool
	exited   bool
}

func (p *FakeProcess) Lines() <-chan string { return p.lines }

func (p *FakeProcess) Write(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, line)
	return nil
}

func (p *FakeProcess) Signal() error {
	p.mu.Lock()
	p.signaled = true
	p.mu.Unlock()
	return nil
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	return nil
}

func (p *FakeProcess) Wait() (int, error) {
	return <-p.waitCh, nil
}

func (p *FakeProcess) PID() int { return p.pid }

// Emit pushes a line into the process's output stream, as if the child
// wrote it to stdout.
func (p *FakeProcess) Emit(line string) { p.lines <- line }

// Exit closes the output stream and unblocks Wait with the given code.
// Idempotent: a process can only exit once.
func (p *FakeProcess) Exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.mu.Unlock()
	close(p.lines)
	p.waitCh <- code
}

// Exited reports whether Exit has already been called.
func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *FakeProcess) WasSignaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

func (p *FakeProcess) WasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *FakeProcess) WrittenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}
