package player

import (
	"sync"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// fakeBackend is an in-memory engine used by the package tests.
type fakeBackend struct {
	mu    sync.Mutex
	cores []*fakeCore

	createErr     error
	createDelay   time.Duration
	panicOnCreate bool
	initErr       error
	optionErr     map[string]error
	observeErr    error
}

func (b *fakeBackend) Create() (Core, error) {
	if b.createDelay > 0 {
		time.Sleep(b.createDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.panicOnCreate {
		panic("backend exploded")
	}
	if b.createErr != nil {
		return nil, b.createErr
	}
	c := &fakeCore{backend: b, props: make(map[string]libmpv.Node), unblock: make(chan struct{})}
	b.cores = append(b.cores, c)
	return c, nil
}

func (b *fakeBackend) created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cores)
}

func (b *fakeBackend) core(i int) *fakeCore {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cores[i]
}

type fakeCore struct {
	backend *fakeBackend

	mu          sync.Mutex
	options     [][2]string
	initialized bool
	props       map[string]libmpv.Node
	sets        []string
	commands    [][]libmpv.Node
	events      *fakeEvents
	destroyed   bool
	unblock     chan struct{}
}

func (c *fakeCore) SetOption(name, value string) error {
	if err := c.backend.optionErr[name]; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = append(c.options, [2]string{name, value})
	return nil
}

func (c *fakeCore) Initialize() error {
	if c.backend.initErr != nil {
		return c.backend.initErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	return nil
}

func (c *fakeCore) NewEventSource(name string) (EventSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = &fakeEvents{name: name, queue: make(chan fakeItem, 64), observeErr: c.backend.observeErr}
	return c.events, nil
}

func (c *fakeCore) Command(args []libmpv.Node) (libmpv.Node, error) {
	name, _ := args[0].Str()
	if name == "block" {
		<-c.unblock
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, args)
	if name == "fail" {
		return libmpv.Node{}, libmpv.NewError(libmpv.KindCall, "error running command").
			WithOp(libmpv.OpCommand).WithName(name).WithStatus(int(libmpv.StatusCommand))
	}
	return libmpv.String("ok"), nil
}

func (c *fakeCore) SetProperty(name string, value libmpv.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[name] = value
	c.sets = append(c.sets, name)
	return nil
}

func (c *fakeCore) GetProperty(name string, format libmpv.Format) (libmpv.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[name]
	if !ok {
		return libmpv.Node{}, libmpv.NewError(libmpv.KindCall, "property not found").
			WithOp(libmpv.OpGetProperty).WithName(name).WithStatus(int(libmpv.StatusPropertyNotFound))
	}
	return v, nil
}

func (c *fakeCore) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	events := c.events
	c.mu.Unlock()

	if events != nil {
		events.push(libmpv.ShutdownEvent{})
	}
}

func (c *fakeCore) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *fakeCore) optionList() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]string(nil), c.options...)
}

func (c *fakeCore) setList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sets...)
}

func (c *fakeCore) commandCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands)
}

func (c *fakeCore) eventSource() *fakeEvents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

type fakeItem struct {
	ev  libmpv.Event
	err error
}

type fakeEvents struct {
	name       string
	queue      chan fakeItem
	observeErr error

	mu        sync.Mutex
	observed  []ObservedProperty
	ids       []uint64
	logLevel  string
	destroyed bool
}

func (e *fakeEvents) ObserveProperty(id uint64, name string, format libmpv.Format) error {
	if e.observeErr != nil {
		return e.observeErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	e.observed = append(e.observed, ObservedProperty{Name: name, Format: format})
	return nil
}

func (e *fakeEvents) RequestLogMessages(level string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logLevel = level
	return nil
}

func (e *fakeEvents) WaitEvent(timeout time.Duration) (libmpv.Event, error) {
	select {
	case item := <-e.queue:
		return item.ev, item.err
	case <-time.After(timeout):
		return nil, nil
	}
}

func (e *fakeEvents) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

func (e *fakeEvents) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *fakeEvents) push(ev libmpv.Event) {
	e.queue <- fakeItem{ev: ev}
}

func (e *fakeEvents) pushErr(err error) {
	e.queue <- fakeItem{err: err}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
