package hsm

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stateforward/go-rxhsm/embedded"
	"github.com/stateforward/go-rxhsm/kinds"
	"github.com/stateforward/go-rxhsm/queue"
	"github.com/stateforward/go-rxhsm/stream"
)

type status = int32

const (
	inactive status = iota
	active
	transitioning
	terminated
	failed
)

type Trace func(ctx context.Context, step string, elements ...embedded.Element) func(...any)

type subcontext = context.Context

// HSM runs a model. It holds the active leaf and the subscriptions armed for
// it. Every delivery goes through one backlog: while an event is being handled,
// deliveries from callbacks or other goroutines are queued and handled, in
// arrival order, by the goroutine already processing.
type HSM struct {
	subcontext
	element
	model         *Model
	ancestors     ancestors
	external      map[*state][]*transition
	internal      map[*state][]*transition
	current       *state
	armed         map[handler]*transition
	subscriptions stream.Composite
	mutex         sync.Mutex
	queue         queue.Queue[delivery]
	processing    bool
	status        atomic.Int32
	logger        *slog.Logger
	trace         Trace
}

// handler keys an armed transition by its group and event source.
type handler struct {
	internal bool
	event    any
}

type delivery struct {
	handler
	value any
}

type Option func(*HSM)

func WithLogger(logger *slog.Logger) Option {
	return func(hsm *HSM) {
		if logger != nil {
			hsm.logger = logger
		}
	}
}

func WithTrace(trace Trace) Option {
	return func(hsm *HSM) {
		hsm.trace = trace
	}
}

// New prepares model for execution. The state machine stays inactive until
// Activate is called.
func New(ctx context.Context, model *Model, options ...Option) (*HSM, error) {
	if model == nil {
		return nil, &ConfigurationError{Err: ErrNilModel}
	}
	index, err := buildAncestors(model.substates)
	if err != nil {
		return nil, err
	}
	if model.initial == nil {
		return nil, &ConfigurationError{Element: model.Id(), Err: ErrMissingInitial}
	}
	if _, ok := index[model.initial]; !ok {
		return nil, &ConfigurationError{Element: model.initial.QualifiedName(), Err: ErrUnknownState}
	}
	hsm := &HSM{
		subcontext: ctx,
		element: element{
			kind:          kinds.Behavior,
			qualifiedName: model.QualifiedName(),
			id:            uuid.Must(uuid.NewV7()).String(),
		},
		model:     model,
		ancestors: index,
		external:  map[*state][]*transition{},
		internal:  map[*state][]*transition{},
		armed:     map[handler]*transition{},
		logger:    slog.Default(),
	}
	for _, transition := range model.transitions {
		hsm.external[transition.source] = append(hsm.external[transition.source], transition)
	}
	for state := range index {
		if len(state.internal) > 0 {
			hsm.internal[state] = state.internal
		}
	}
	for _, option := range options {
		option(hsm)
	}
	hsm.logger = hsm.logger.With("hsm", hsm.id, "model", model.Id())
	return hsm, nil
}

func (hsm *HSM) State() string {
	if hsm == nil || hsm.current == nil {
		return ""
	}
	return hsm.current.QualifiedName()
}

// Configuration returns the qualified names of the active states, root first.
func (hsm *HSM) Configuration() []string {
	if hsm == nil || hsm.current == nil {
		return nil
	}
	configuration := []string{}
	for _, state := range hsm.ancestors.configuration(hsm.current) {
		configuration = append(configuration, state.QualifiedName())
	}
	return configuration
}

func (hsm *HSM) Active(qualifiedName string) bool {
	return slices.Contains(hsm.Configuration(), qualifiedName)
}

// Activate enters the initial state's ancestors, the initial state and its
// initial substates down to a leaf, then hands the leaf's transitions any
// event emitted meanwhile.
func (hsm *HSM) Activate() error {
	if !hsm.status.CompareAndSwap(inactive, transitioning) {
		switch hsm.status.Load() {
		case terminated:
			return ErrTerminated
		case failed:
			return ErrFailed
		default:
			return ErrAlreadyActive
		}
	}
	hsm.mutex.Lock()
	hsm.processing = true
	hsm.mutex.Unlock()
	hsm.process(hsm.activate)
	return nil
}

func (hsm *HSM) activate() {
	if hsm.trace != nil {
		defer hsm.trace(hsm, "Activate", hsm.model.initial)()
	}
	defer hsm.settle("Activate")()
	initial := hsm.model.initial
	leaf := initial.leaf()
	hsm.arm(leaf)
	for _, ancestor := range hsm.ancestors[initial] {
		hsm.enter(ancestor)
	}
	for state := initial; state != nil; state = state.initial {
		hsm.enter(state)
	}
	hsm.current = leaf
	hsm.logger.Debug("activated", "state", hsm.State())
	hsm.status.Store(active)
}

// Terminate cancels every subscription and exits the active configuration
// from the leaf outwards. A terminated state machine cannot be activated again.
func (hsm *HSM) Terminate() {
	if hsm == nil {
		return
	}
	if hsm.status.CompareAndSwap(inactive, terminated) {
		return
	}
	if !hsm.status.CompareAndSwap(active, transitioning) {
		if hsm.status.Load() == transitioning {
			panic(ErrReentrantTransition)
		}
		return
	}
	if hsm.trace != nil {
		defer hsm.trace(hsm, "Terminate", hsm.current)()
	}
	defer hsm.settle("Terminate")()
	hsm.subscriptions.Clear()
	configuration := hsm.ancestors.configuration(hsm.current)
	for i := len(configuration) - 1; i >= 0; i-- {
		hsm.exit(configuration[i])
	}
	hsm.current = nil
	hsm.logger.Debug("terminated")
	hsm.status.Store(terminated)
}

// settle marks the state machine failed when a callback panics before the
// step stores its final status.
func (hsm *HSM) settle(step string) func() {
	return func() {
		if hsm.status.Load() != transitioning {
			return
		}
		hsm.status.Store(failed)
		hsm.subscriptions.Clear()
		if r := recover(); r != nil {
			hsm.logger.Error("callback failed", "step", step, "state", hsm.State(), "error", r)
			panic(r)
		}
	}
}

// deliver hands a value from an armed source to the backlog and processes it
// unless another call is already processing.
func (hsm *HSM) deliver(delivery delivery) {
	hsm.mutex.Lock()
	if hsm.processing {
		hsm.queue.Push(delivery)
		hsm.mutex.Unlock()
		return
	}
	hsm.processing = true
	hsm.mutex.Unlock()
	hsm.process(func() {
		hsm.dispatch(delivery)
	})
}

// process runs step, then every delivery queued while it ran. It is entered
// with processing set.
func (hsm *HSM) process(step func()) {
	defer func() {
		if r := recover(); r != nil {
			hsm.mutex.Lock()
			hsm.processing = false
			hsm.queue.Clear()
			hsm.mutex.Unlock()
			panic(r)
		}
	}()
	step()
	for {
		hsm.mutex.Lock()
		next, ok := hsm.queue.Pop()
		if !ok {
			hsm.processing = false
			hsm.mutex.Unlock()
			return
		}
		hsm.mutex.Unlock()
		hsm.dispatch(next)
	}
}

// dispatch handles one delivery against the transitions armed now, which may
// belong to a later scope than the one that received it.
func (hsm *HSM) dispatch(delivery delivery) {
	switch hsm.status.Load() {
	case active:
	case failed:
		panic(ErrFailed)
	default:
		return
	}
	candidate, ok := hsm.armed[delivery.handler]
	if !ok {
		hsm.logger.Debug("no handler in scope", "state", hsm.State())
		return
	}
	if !hsm.evaluate(candidate, delivery.value) {
		return
	}
	if delivery.internal {
		if hsm.trace != nil {
			defer hsm.trace(hsm, "internal", candidate)()
		}
		hsm.execute(candidate.effect, delivery.value)
		return
	}
	hsm.switchState(candidate, delivery.value)
}

// switchState runs the effect, swaps the armed scope, then exits the current
// configuration and enters the target's. Deliveries to the new scope made by
// these callbacks wait in the backlog until the switch completes.
func (hsm *HSM) switchState(candidate *transition, value any) {
	if !hsm.status.CompareAndSwap(active, transitioning) {
		switch hsm.status.Load() {
		case transitioning:
			panic(ErrReentrantTransition)
		case failed:
			panic(ErrFailed)
		}
		return
	}
	if hsm.trace != nil {
		defer hsm.trace(hsm, "transition", candidate)()
	}
	defer hsm.settle("transition")()
	source := hsm.current
	target := candidate.target.leaf()
	path := CalculatePath(hsm.ancestors[source], hsm.ancestors[target])

	hsm.subscriptions.Clear()
	hsm.arm(target)
	hsm.execute(candidate.effect, value)
	hsm.exit(source)
	for _, state := range path.Exit {
		hsm.exit(state)
	}
	for _, state := range path.Enter {
		hsm.enter(state)
	}
	hsm.enter(target)
	hsm.current = target
	hsm.logger.Debug("transitioned", "transition", candidate.QualifiedName(), "from", source.QualifiedName(), "to", target.QualifiedName())
	hsm.status.Store(active)
}

// arm resolves the live transitions of leaf and subscribes one merged source
// for the external group and one for the internal group.
func (hsm *HSM) arm(leaf *state) {
	chain := hsm.ancestors[leaf]
	external := Resolve(leaf, chain, hsm.external, eventOf)
	internal := Resolve(leaf, chain, hsm.internal, eventOf)
	hsm.armed = make(map[handler]*transition, len(external)+len(internal))
	for _, group := range []struct {
		internal    bool
		transitions []*transition
	}{{false, external}, {true, internal}} {
		if len(group.transitions) == 0 {
			continue
		}
		for _, candidate := range group.transitions {
			hsm.armed[handler{internal: group.internal, event: candidate.event}] = candidate
		}
		hsm.subscriptions.Add(stream.Merge(bind(group.internal, group.transitions)...).Subscribe(hsm.deliver))
	}
}

func eventOf(transition *transition) any {
	return transition.event
}

func bind(internal bool, transitions []*transition) []stream.Source[delivery] {
	sources := make([]stream.Source[delivery], 0, len(transitions))
	for _, candidate := range transitions {
		key := handler{internal: internal, event: candidate.event}
		sources = append(sources, stream.Map(candidate.events, func(value any) delivery {
			return delivery{handler: key, value: value}
		}))
	}
	return sources
}

func (hsm *HSM) enter(state *state) {
	if hsm.trace != nil {
		defer hsm.trace(hsm, "enter", state)()
	}
	hsm.execute(state.entry, nil)
}

func (hsm *HSM) exit(state *state) {
	if hsm.trace != nil {
		defer hsm.trace(hsm, "exit", state)()
	}
	hsm.execute(state.exit, nil)
}

func (hsm *HSM) execute(behavior *behavior, value any) {
	if behavior == nil {
		return
	}
	if hsm.trace != nil {
		defer hsm.trace(hsm, "execute", behavior)()
	}
	behavior.action(hsm, value)
}

func (hsm *HSM) evaluate(transition *transition, value any) bool {
	guard := transition.guard
	if guard == nil {
		return true
	}
	if hsm.trace != nil {
		defer hsm.trace(hsm, "evaluate", guard)()
	}
	if guard.expression(hsm, value) {
		return true
	}
	hsm.logger.Debug("guard rejected event", "transition", transition.QualifiedName(), "state", hsm.State())
	return false
}
