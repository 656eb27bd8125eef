package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/logging"
	"github.com/quicknotes/offline-hub/internal/worker"
)

// Options 配置 Registration 的外部协作者。
type Options struct {
	Logger *logrus.Logger
	// Passthrough 处理没有控制者的页面请求，可为空。
	Passthrough worker.Fetcher
	// Records 持久化激活版本，可为空。
	Records RecordStore
}

// Registration owns the installing, waiting and active slots for one scope.
type Registration struct {
	logger      *logrus.Logger
	passthrough worker.Fetcher
	records     RecordStore

	// job 串行化 install/activate，保证某版本安装完成前不会进入激活。
	job sync.Mutex

	mu          sync.Mutex
	installing  *Instance
	waiting     *Instance
	active      *Instance
	clients     map[string]*Client
	subscribers map[*subscriber]struct{}
}

// New constructs an empty registration.
func New(opts Options) *Registration {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registration{
		logger:      logger,
		passthrough: opts.Passthrough,
		records:     opts.Records,
		clients:     make(map[string]*Client),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Update installs script as a new instance. It returns ErrSameVersion when
// the version is already active or waiting. On install failure the instance
// becomes redundant and the handler's error is returned; the active instance
// is untouched. On success the instance waits, or activates immediately when
// nothing is controlled by the current active instance.
func (r *Registration) Update(ctx context.Context, script Script) (*Instance, error) {
	if script == nil {
		return nil, errors.New("script is required")
	}
	r.job.Lock()
	defer r.job.Unlock()

	r.mu.Lock()
	if (r.active != nil && r.active.Version() == script.Version()) ||
		(r.waiting != nil && r.waiting.Version() == script.Version()) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSameVersion, script.Version())
	}
	inst := newInstance(script)
	r.installing = inst
	r.mu.Unlock()

	r.emit(Event{Type: EventUpdateFound, InstanceID: inst.id, Version: inst.Version(), State: StateInstalling})

	if err := script.OnInstall(ctx); err != nil {
		r.mu.Lock()
		r.installing = nil
		r.mu.Unlock()
		r.transition(inst, StateRedundant)
		return inst, err
	}

	r.mu.Lock()
	r.installing = nil
	replaced := r.waiting
	r.waiting = inst
	r.mu.Unlock()
	if replaced != nil {
		r.transition(replaced, StateRedundant)
	}
	r.transition(inst, StateInstalled)

	r.tryActivate(ctx)
	return inst, nil
}

// Restore reinstates a previously activated script without reinstalling it.
func (r *Registration) Restore(script Script) (*Instance, error) {
	if script == nil {
		return nil, errors.New("script is required")
	}
	r.job.Lock()
	defer r.job.Unlock()

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	inst := newInstance(script)
	r.active = inst
	r.mu.Unlock()

	inst.setState(StateActivated)
	r.emit(Event{Type: EventStateChange, InstanceID: inst.id, Version: inst.Version(), State: StateActivated})
	r.logger.WithFields(logging.WorkerFields("restore", string(inst.Version()))).Info("active worker restored")
	return inst, nil
}

// SkipWaiting requests promotion of the instance and activates it at once
// if it is the waiting one.
func (r *Registration) SkipWaiting(ctx context.Context, id string) error {
	inst := r.lookup(id)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrNoInstance, id)
	}
	inst.skipWaiting.Store(true)

	r.job.Lock()
	defer r.job.Unlock()
	r.tryActivate(ctx)
	return nil
}

// PostMessage delivers msg to the instance's message handler.
func (r *Registration) PostMessage(ctx context.Context, id string, msg worker.Message) error {
	inst := r.lookup(id)
	if inst == nil || inst.State() == StateRedundant {
		return fmt.Errorf("%w: %s", ErrNoInstance, id)
	}
	if err := inst.script.OnMessage(ctx, scope{inst: inst}, msg); err != nil {
		return err
	}
	if inst.skipWaiting.Load() {
		r.job.Lock()
		defer r.job.Unlock()
		r.tryActivate(ctx)
	}
	return nil
}

// Fetch dispatches req to the client's controller, or to the passthrough
// fetcher when the client is uncontrolled.
func (r *Registration) Fetch(ctx context.Context, client *Client, req *worker.Request) (*worker.Result, error) {
	var controller *Instance
	if client != nil {
		controller = client.Controller()
	}
	if controller == nil {
		if r.passthrough == nil {
			return nil, ErrNoController
		}
		resp, err := r.passthrough.Fetch(ctx, req)
		if err != nil {
			return nil, &worker.FetchError{Method: req.Method, URL: req.URL, Err: err}
		}
		return &worker.Result{Response: resp, Source: worker.SourcePassthrough}, nil
	}
	if err := controller.waitActivated(ctx); err != nil {
		return nil, err
	}
	return controller.script.OnFetch(ctx, req)
}

// Attach registers a new page client, controlled by the active instance if any.
func (r *Registration) Attach() *Client {
	client := newClient()
	r.mu.Lock()
	if r.active != nil {
		client.controller.Store(r.active)
	}
	r.clients[client.id] = client
	r.mu.Unlock()
	return client
}

// Detach removes client. A waiting instance activates once no client is
// controlled by the active one.
func (r *Registration) Detach(ctx context.Context, client *Client) {
	if client == nil {
		return
	}
	r.mu.Lock()
	delete(r.clients, client.id)
	r.mu.Unlock()

	r.job.Lock()
	defer r.job.Unlock()
	r.tryActivate(ctx)
}

// Subscribe returns an ordered event stream and a cancel func. Publishing
// never blocks on slow subscribers.
func (r *Registration) Subscribe() (<-chan Event, func()) {
	sub := newSubscriber()
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subscribers, sub)
		r.mu.Unlock()
		sub.close()
	}
	return sub.out, cancel
}

// Active 返回当前激活实例，可能为 nil。
func (r *Registration) Active() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting 返回等待中的实例，可能为 nil。
func (r *Registration) Waiting() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Installing 返回正在安装的实例，可能为 nil。
func (r *Registration) Installing() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installing
}

// Snapshot 汇总三个槽位与客户端数量，供诊断接口输出。
type Snapshot struct {
	Installing *InstanceInfo `json:"installing,omitempty"`
	Waiting    *InstanceInfo `json:"waiting,omitempty"`
	Active     *InstanceInfo `json:"active,omitempty"`
	Clients    int           `json:"clients"`
}

// Snapshot returns the current slots.
func (r *Registration) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Installing: infoOf(r.installing),
		Waiting:    infoOf(r.waiting),
		Active:     infoOf(r.active),
		Clients:    len(r.clients),
	}
}

// Close 关闭全部订阅。
func (r *Registration) Close() {
	r.mu.Lock()
	subs := r.subscribers
	r.subscribers = make(map[*subscriber]struct{})
	r.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

func infoOf(inst *Instance) *InstanceInfo {
	if inst == nil {
		return nil
	}
	info := inst.Info()
	return &info
}

func (r *Registration) lookup(id string) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range []*Instance{r.installing, r.waiting, r.active} {
		if inst != nil && inst.id == id {
			return inst
		}
	}
	return nil
}

// tryActivate 调用方必须持有 job 锁。
func (r *Registration) tryActivate(ctx context.Context) {
	r.mu.Lock()
	next := r.waiting
	if next == nil {
		r.mu.Unlock()
		return
	}
	ready := r.active == nil || next.skipWaiting.Load() || r.controlledLocked(r.active) == 0
	r.mu.Unlock()
	if ready {
		r.activate(ctx, next)
	}
}

func (r *Registration) controlledLocked(inst *Instance) int {
	count := 0
	for _, client := range r.clients {
		if client.Controller() == inst {
			count++
		}
	}
	return count
}

func (r *Registration) activate(ctx context.Context, next *Instance) {
	r.mu.Lock()
	previous := r.active
	r.waiting = nil
	r.active = next
	var claimed []*Client
	if previous != nil {
		for _, client := range r.clients {
			if client.controller.CompareAndSwap(previous, next) {
				claimed = append(claimed, client)
			}
		}
	}
	r.mu.Unlock()

	r.transition(next, StateActivating)
	if previous != nil {
		r.transition(previous, StateRedundant)
	}
	for _, client := range claimed {
		r.emit(Event{
			Type:       EventControllerChange,
			InstanceID: next.id,
			Version:    next.Version(),
			State:      StateActivating,
			ClientID:   client.id,
		})
	}

	if err := next.script.OnActivate(ctx); err != nil {
		r.logger.WithFields(logging.WorkerFields("activate", string(next.Version()))).
			Warn(err.Error())
	}
	r.transition(next, StateActivated)
	r.persist(next)
}

func (r *Registration) persist(inst *Instance) {
	if r.records == nil {
		return
	}
	record := Record{ActiveVersion: inst.Version(), ActivatedAt: time.Now().UTC()}
	if err := r.records.Save(record); err != nil {
		r.logger.WithFields(logging.WorkerFields("persist_registration", string(inst.Version()))).
			Warn(err.Error())
	}
}

func (r *Registration) transition(inst *Instance, state State) {
	inst.setState(state)
	fields := logging.WorkerFields("statechange", string(inst.Version()))
	fields["instance"] = inst.id
	fields["state"] = state.String()
	r.logger.WithFields(fields).Info("worker state changed")
	r.emit(Event{Type: EventStateChange, InstanceID: inst.id, Version: inst.Version(), State: state})
}

func (r *Registration) emit(ev Event) {
	r.mu.Lock()
	subs := make([]*subscriber, 0, len(r.subscribers))
	for sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.mu.Unlock()
	for _, sub := range subs {
		sub.push(ev)
	}
}
