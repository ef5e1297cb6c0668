package hsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"reflect"

	"github.com/google/uuid"

	"github.com/stateforward/go-rxhsm/embedded"
	"github.com/stateforward/go-rxhsm/kinds"
	"github.com/stateforward/go-rxhsm/stream"
)

/******* Element *******/

type element struct {
	kind          uint64
	qualifiedName string
	id            string
}

func (element *element) Kind() uint64 {
	if element == nil {
		return 0
	}
	return element.kind
}

func (element *element) Owner() string {
	if element == nil {
		return ""
	}
	return path.Dir(element.qualifiedName)
}

func (element *element) Id() string {
	if element == nil {
		return ""
	}
	return element.id
}

func (element *element) Name() string {
	if element == nil {
		return ""
	}
	return path.Base(element.qualifiedName)
}

func (element *element) QualifiedName() string {
	if element == nil {
		return ""
	}
	return element.qualifiedName
}

func newElement(kind uint64, qualifiedName string) element {
	return element{kind: kind, qualifiedName: qualifiedName, id: uuid.NewString()}
}

/******* Behavior *******/

type behavior struct {
	element
	action func(ctx context.Context, value any)
}

/******* Constraint *******/

type constraint struct {
	element
	expression func(ctx context.Context, value any) bool
}

/******* State *******/

type state struct {
	element
	entry     *behavior
	exit      *behavior
	substates []*state
	initial   *state
	internal  []*transition
}

func (state *state) Substates() []embedded.State {
	substates := make([]embedded.State, 0, len(state.substates))
	for _, substate := range state.substates {
		substates = append(substates, substate)
	}
	return substates
}

func (state *state) InitialSubstate() embedded.State {
	if state.initial == nil {
		return nil
	}
	return state.initial
}

func (state *state) Entry() string {
	if state.entry == nil {
		return ""
	}
	return state.entry.QualifiedName()
}

func (state *state) Exit() string {
	if state.exit == nil {
		return ""
	}
	return state.exit.QualifiedName()
}

func (state *state) Internal() []embedded.Transition {
	return transitions(state.internal)
}

// leaf follows the initial substate chain down to the deepest default state.
func (state *state) leaf() *state {
	for state.initial != nil {
		state = state.initial
	}
	return state
}

/******* Transition *******/

type transition struct {
	element
	source  *state
	target  *state
	from    string
	to      string
	event   any
	events  stream.Source[any]
	payload reflect.Type
	guard   *constraint
	effect  *behavior
}

func (transition *transition) Source() string {
	return transition.from
}

func (transition *transition) Target() string {
	return transition.to
}

func (transition *transition) Guard() string {
	if transition.guard == nil {
		return ""
	}
	return transition.guard.QualifiedName()
}

func (transition *transition) Effect() string {
	if transition.effect == nil {
		return ""
	}
	return transition.effect.QualifiedName()
}

func (transition *transition) Event() any {
	return transition.event
}

func transitions(list []*transition) []embedded.Transition {
	result := make([]embedded.Transition, 0, len(list))
	for _, transition := range list {
		result = append(result, transition)
	}
	return result
}

/******* Model *******/

// Model is the immutable state forest produced by Define. The embedded root
// state is only a namespace: its substates are the top states and its
// initial is the state the machine activates from.
type Model struct {
	state
	namespace   map[string]embedded.NamedElement
	transitions []*transition
	elements    []RedefinableElement
	errs        []error
}

func (model *Model) Namespace() map[string]embedded.NamedElement {
	return model.namespace
}

func (model *Model) Tops() []embedded.State {
	return model.Substates()
}

func (model *Model) Initial() embedded.State {
	return model.InitialSubstate()
}

func (model *Model) Transitions() []embedded.Transition {
	return transitions(model.transitions)
}

// Push defers a partial until every element of the current pass is applied.
func (model *Model) Push(partial RedefinableElement) {
	model.elements = append(model.elements, partial)
}

func (model *Model) fail(element string, err error) {
	model.errs = append(model.errs, &ConfigurationError{Element: element, Err: err})
}

type RedefinableElement = func(model *Model, stack []embedded.NamedElement) embedded.NamedElement

func apply(model *Model, stack []embedded.NamedElement, partials ...RedefinableElement) {
	for _, partial := range partials {
		if partial != nil {
			partial(model, stack)
		}
	}
}

// Define builds a model from partial elements. Every configuration problem
// found is returned, joined, as *ConfigurationError values.
func Define[T interface{ RedefinableElement | string }](nameOrRedefinableElement T, redefinableElements ...RedefinableElement) (*Model, error) {
	id := uuid.NewString()
	switch any(nameOrRedefinableElement).(type) {
	case string:
		id = any(nameOrRedefinableElement).(string)
	case RedefinableElement:
		redefinableElements = append([]RedefinableElement{any(nameOrRedefinableElement).(RedefinableElement)}, redefinableElements...)
	}
	model := &Model{
		state: state{
			element: element{kind: kinds.Model, qualifiedName: "/", id: id},
		},
		namespace: map[string]embedded.NamedElement{},
		elements:  redefinableElements,
	}
	stack := []embedded.NamedElement{model}
	for len(model.elements) > 0 {
		elements := model.elements
		model.elements = []RedefinableElement{}
		apply(model, stack, elements...)
	}
	model.validate()
	if err := errors.Join(model.errs...); err != nil {
		slog.Error("invalid model", "model", id, "error", err)
		return nil, err
	}
	return model, nil
}

// MustDefine is Define that panics on a configuration error.
func MustDefine[T interface{ RedefinableElement | string }](nameOrRedefinableElement T, redefinableElements ...RedefinableElement) *Model {
	model, err := Define(nameOrRedefinableElement, redefinableElements...)
	if err != nil {
		panic(fmt.Sprintf("failed to define model: %v", err))
	}
	return model
}

func (model *Model) validate() {
	if len(model.substates) == 0 {
		model.fail("", ErrNoTopStates)
	} else if model.initial == nil {
		model.fail("/", ErrMissingInitial)
	}
	var walk func(state *state)
	walk = func(state *state) {
		if len(state.substates) > 0 && state.initial == nil {
			model.fail(state.QualifiedName(), ErrMissingInitial)
		}
		for _, substate := range state.substates {
			walk(substate)
		}
	}
	for _, top := range model.substates {
		walk(top)
	}
}

func find(stack []embedded.NamedElement, maybeKinds ...uint64) embedded.NamedElement {
	for i := len(stack) - 1; i >= 0; i-- {
		if kinds.IsKind(stack[i].Kind(), maybeKinds...) {
			return stack[i]
		}
	}
	return nil
}

// resolve qualifies a relative name against the nearest enclosing state.
func resolve(stack []embedded.NamedElement, name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	owner := find(stack, kinds.State, kinds.Model)
	if owner == nil {
		return path.Join("/", name)
	}
	return path.Join(owner.QualifiedName(), name)
}

func lookup(model *Model, qualifiedName string) (*state, bool) {
	state, ok := model.namespace[qualifiedName].(*state)
	return state, ok
}

func State(name string, partialElements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kinds.State, kinds.Model)
		if owner == nil || kinds.IsKind(stack[len(stack)-1].Kind(), kinds.Transition) {
			model.fail(name, fmt.Errorf("%w: state must be called within a Model or State", ErrInvalidPlacement))
			return nil
		}
		qualifiedName := path.Join(owner.QualifiedName(), name)
		if _, exists := model.namespace[qualifiedName]; exists {
			model.fail(qualifiedName, ErrDuplicateState)
			return nil
		}
		element := &state{element: newElement(kinds.State, qualifiedName)}
		model.namespace[qualifiedName] = element
		switch parent := owner.(type) {
		case *Model:
			parent.substates = append(parent.substates, element)
		case *state:
			parent.substates = append(parent.substates, element)
		}
		apply(model, append(stack, element), partialElements...)
		return element
	}
}

// Initial designates the initial substate of the enclosing state. At model
// level it designates the state the machine activates from, which may be
// any state of the forest.
func Initial(name string) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kinds.State, kinds.Model)
		if owner == nil || kinds.IsKind(stack[len(stack)-1].Kind(), kinds.Transition) {
			model.fail(name, fmt.Errorf("%w: initial must be called within a Model or State", ErrInvalidPlacement))
			return nil
		}
		var parent *state
		switch owner := owner.(type) {
		case *Model:
			parent = &owner.state
		case *state:
			parent = owner
		}
		qualifiedName := resolve(stack, name)
		model.Push(func(model *Model, _ []embedded.NamedElement) embedded.NamedElement {
			initial, ok := lookup(model, qualifiedName)
			switch {
			case !ok:
				model.fail(qualifiedName, fmt.Errorf("%w: initial of %s", ErrUnknownState, parent.QualifiedName()))
			case parent.initial != nil:
				model.fail(parent.QualifiedName(), ErrDuplicateInitial)
			case parent.kind != kinds.Model && initial.Owner() != parent.QualifiedName():
				model.fail(qualifiedName, fmt.Errorf("%w of %s", ErrInitialNotChild, parent.QualifiedName()))
			default:
				parent.initial = initial
			}
			return initial
		})
		return owner
	}
}

func Entry(fn func(ctx context.Context), maybeName ...string) RedefinableElement {
	return action(fn, ".entry", func(state *state) **behavior { return &state.entry }, ErrDuplicateEntry, maybeName...)
}

func Exit(fn func(ctx context.Context), maybeName ...string) RedefinableElement {
	return action(fn, ".exit", func(state *state) **behavior { return &state.exit }, ErrDuplicateExit, maybeName...)
}

func action(fn func(ctx context.Context), name string, slot func(*state) **behavior, duplicate error, maybeName ...string) RedefinableElement {
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner, ok := stack[len(stack)-1].(*state)
		if !ok {
			model.fail(name, fmt.Errorf("%w: %s must be called within a State", ErrInvalidPlacement, name))
			return nil
		}
		assigned := slot(owner)
		if *assigned != nil {
			model.fail(owner.QualifiedName(), duplicate)
			return nil
		}
		element := &behavior{
			element: newElement(kinds.Behavior, path.Join(owner.QualifiedName(), name)),
			action: func(ctx context.Context, _ any) {
				if fn != nil {
					fn(ctx)
				}
			},
		}
		model.namespace[element.QualifiedName()] = element
		*assigned = element
		return element
	}
}

// Transition declares an external transition triggered by event. The source
// defaults to the enclosing state and the target is required.
func Transition[T any](event stream.Source[T], partialElements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		return declare(model, stack, kinds.External, event, partialElements)
	}
}

// Internal declares an internal transition: when event fires within the
// scope of its state only the effect runs, no state is exited or entered.
func Internal[T any](event stream.Source[T], partialElements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		return declare(model, stack, kinds.Internal, event, partialElements)
	}
}

func declare[T any](model *Model, stack []embedded.NamedElement, kind uint64, event stream.Source[T], partialElements []RedefinableElement) embedded.NamedElement {
	owner := find(stack, kinds.State, kinds.Model)
	if owner == nil || kinds.IsKind(stack[len(stack)-1].Kind(), kinds.Transition) {
		model.fail("", fmt.Errorf("%w: transition must be called within a Model or State", ErrInvalidPlacement))
		return nil
	}
	qualifiedName := path.Join(owner.QualifiedName(), fmt.Sprintf("transition_%d", len(model.namespace)))
	transition := &transition{
		element: newElement(kind, qualifiedName),
		payload: reflect.TypeFor[T](),
	}
	switch {
	case event == nil:
		model.fail(qualifiedName, ErrNilEvent)
		return nil
	case !reflect.TypeOf(event).Comparable():
		model.fail(qualifiedName, ErrIncomparableEvent)
		return nil
	}
	transition.event = event
	transition.events = stream.Map(event, func(value T) any {
		return value
	})
	model.namespace[qualifiedName] = transition
	apply(model, append(stack, transition), partialElements...)

	if transition.from == "" {
		if owner.Kind() == kinds.Model {
			model.fail(qualifiedName, ErrMissingSource)
			return nil
		}
		transition.from = owner.QualifiedName()
	}
	if kind == kinds.Internal && transition.to != "" {
		model.fail(qualifiedName, fmt.Errorf("%w: internal transition cannot have a target", ErrInvalidPlacement))
		return nil
	}
	if kind == kinds.External && transition.to == "" {
		model.fail(qualifiedName, ErrMissingTarget)
		return nil
	}
	model.Push(func(model *Model, _ []embedded.NamedElement) embedded.NamedElement {
		source, ok := lookup(model, transition.from)
		if !ok {
			model.fail(qualifiedName, fmt.Errorf("%w: missing source %s", ErrUnknownState, transition.from))
			return nil
		}
		transition.source = source
		if kind == kinds.Internal {
			source.internal = append(source.internal, transition)
			return transition
		}
		target, ok := lookup(model, transition.to)
		if !ok {
			model.fail(qualifiedName, fmt.Errorf("%w: missing target %s", ErrUnknownState, transition.to))
			return nil
		}
		transition.target = target
		if target == source {
			transition.kind = kinds.Self
		}
		model.transitions = append(model.transitions, transition)
		return transition
	})
	return transition
}

func Source(name string) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner, ok := stack[len(stack)-1].(*transition)
		if !ok {
			model.fail(name, fmt.Errorf("%w: source must be called within a Transition", ErrInvalidPlacement))
			return nil
		}
		owner.from = resolve(stack[:len(stack)-1], name)
		return owner
	}
}

func Target(name string) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner, ok := stack[len(stack)-1].(*transition)
		if !ok {
			model.fail(name, fmt.Errorf("%w: target must be called within a Transition", ErrInvalidPlacement))
			return nil
		}
		if owner.to != "" {
			model.fail(owner.QualifiedName(), fmt.Errorf("%w: transition already has target %s", ErrInvalidPlacement, owner.to))
			return nil
		}
		owner.to = resolve(stack[:len(stack)-1], name)
		return owner
	}
}

// Guard attaches a predicate evaluated against the event payload when the
// event is delivered. A rejected event is dropped.
func Guard[T any](fn func(ctx context.Context, value T) bool, maybeName ...string) RedefinableElement {
	name := ".guard"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner, ok := stack[len(stack)-1].(*transition)
		if !ok {
			model.fail(name, fmt.Errorf("%w: guard must be called within a Transition", ErrInvalidPlacement))
			return nil
		}
		payload := reflect.TypeFor[T]()
		if !owner.payload.AssignableTo(payload) {
			model.fail(path.Join(owner.QualifiedName(), name), fmt.Errorf("%w: guard takes %s, event carries %s", ErrPayloadType, payload, owner.payload))
			return nil
		}
		element := &constraint{
			element: newElement(kinds.Constraint, path.Join(owner.QualifiedName(), name)),
			expression: func(ctx context.Context, value any) bool {
				typed, _ := value.(T)
				return fn(ctx, typed)
			},
		}
		model.namespace[element.QualifiedName()] = element
		owner.guard = element
		return element
	}
}

// Effect attaches the action run with the event payload when the transition is taken.
func Effect[T any](fn func(ctx context.Context, value T), maybeName ...string) RedefinableElement {
	name := ".effect"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner, ok := stack[len(stack)-1].(*transition)
		if !ok {
			model.fail(name, fmt.Errorf("%w: effect must be called within a Transition", ErrInvalidPlacement))
			return nil
		}
		payload := reflect.TypeFor[T]()
		if !owner.payload.AssignableTo(payload) {
			model.fail(path.Join(owner.QualifiedName(), name), fmt.Errorf("%w: effect takes %s, event carries %s", ErrPayloadType, payload, owner.payload))
			return nil
		}
		element := &behavior{
			element: newElement(kinds.Behavior, path.Join(owner.QualifiedName(), name)),
			action: func(ctx context.Context, value any) {
				typed, _ := value.(T)
				fn(ctx, typed)
			},
		}
		model.namespace[element.QualifiedName()] = element
		owner.effect = element
		return element
	}
}
