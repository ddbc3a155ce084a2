// Package watershed runs the click-to-watershed cycle of one session: guard
// against overlapping jobs, submit the selected point, and render the two
// result sets onto the view.
package watershed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/gp"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
	"github.com/mohammed-shakir/watershed-gateway/internal/events"
	"github.com/mohammed-shakir/watershed-gateway/internal/logger"
	"github.com/mohammed-shakir/watershed-gateway/internal/mapper"
	"github.com/mohammed-shakir/watershed-gateway/internal/view"
)

// Geoprocessor is the authenticated job API the orchestrator submits to
type Geoprocessor interface {
	SubmitJob(ctx context.Context, req model.JobRequest) (model.JobHandle, error)
	GetResultData(ctx context.Context, jobID, param string) (model.FeatureSet, error)
}

var _ Geoprocessor = (*gp.Client)(nil)

// Dispatch is what happened to a selected point
type Dispatch int

const (
	DispatchSubmitted Dispatch = iota
	DispatchBusy
	DispatchNoClient
)

func (d Dispatch) String() string {
	switch d {
	case DispatchSubmitted:
		return "submitted"
	case DispatchBusy:
		return "busy"
	case DispatchNoClient:
		return "no_client"
	default:
		return "unknown"
	}
}

func (d Dispatch) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Outcome of the submit step
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeNotSucceeded
	OutcomeTransportError
	// OutcomeDiscarded marks a job whose session was detached before it resolved
	OutcomeDiscarded
)

var errDetached = errors.New("watershed: session detached")

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeNotSucceeded:
		return "not_succeeded"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Classify maps the resolution of a submission to an outcome
func Classify(h model.JobHandle, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeTransportError
	case gp.Succeeded(h.Status):
		return OutcomeSucceeded
	default:
		return OutcomeNotSucceeded
	}
}

// Cycle describes one finished job, including rendered counts
type Cycle struct {
	Point     model.Point
	Handle    model.JobHandle
	Outcome   Outcome
	Err       error
	Cell      string
	Polygons  int
	Snapped   int
	Retarget  bool
	Duration  time.Duration
	FetchErrs []error
}

type Options struct {
	Logger *slog.Logger
	Events events.Sink
	// Mapper and H3Res derive the cell keys carried by job events
	Mapper mapper.Interface
	H3Res  int
	Mode   string
	// OnCycle is called after each job has been fully handled
	OnCycle func(Cycle)
}

// attachment is one geoprocessor bound to the session. Its context is
// cancelled on detach, and jobs it started may only render while it is
// still the current attachment.
type attachment struct {
	g          Geoprocessor
	ctx        context.Context
	cancel     context.CancelFunc
	processing atomic.Bool
}

// Orchestrator is session scoped; each attachment owns a processing flag.
type Orchestrator struct {
	base context.Context
	view *view.View
	opts Options

	// mu orders attach and detach against rendering
	mu      sync.Mutex
	current atomic.Pointer[attachment]
	onCycle atomic.Pointer[func(Cycle)]
	wg      sync.WaitGroup
}

// New creates an orchestrator whose jobs run under base, which should live
// as long as the session.
func New(base context.Context, v *view.View, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	o := &Orchestrator{base: base, view: v, opts: opts}
	o.SetOnCycle(opts.OnCycle)
	return o
}

// SetOnCycle replaces the hook called after each finished job
func (o *Orchestrator) SetOnCycle(fn func(Cycle)) {
	if fn == nil {
		o.onCycle.Store(nil)
		return
	}
	o.onCycle.Store(&fn)
}

// SetGeoprocessor attaches g, replacing and cancelling any prior attachment.
// A nil g detaches.
func (o *Orchestrator) SetGeoprocessor(g Geoprocessor) {
	var next *attachment
	if g != nil {
		ctx, cancel := context.WithCancel(o.base)
		next = &attachment{g: g, ctx: ctx, cancel: cancel}
	}

	o.mu.Lock()
	prev := o.current.Swap(next)
	if prev != nil && prev.processing.Load() {
		observability.SetProcessing(false)
		o.view.ShowProgress(false)
	}
	o.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

// Detach cancels the in-flight job, if any, and stops dispatching. Once it
// returns, nothing from the old attachment touches the view.
func (o *Orchestrator) Detach() { o.SetGeoprocessor(nil) }

func (o *Orchestrator) Attached() bool { return o.current.Load() != nil }

func (o *Orchestrator) Processing() bool {
	a := o.current.Load()
	return a != nil && a.processing.Load()
}

// Wait blocks until every submitted job and its fetches have finished
func (o *Orchestrator) Wait() { o.wg.Wait() }

// OnPointSelected handles a map click. The marker and progress indicator are
// updated before it returns; the job itself runs in the background.
func (o *Orchestrator) OnPointSelected(ctx context.Context, pt model.Point) Dispatch {
	a := o.current.Load()
	if a == nil {
		observability.IncClick(DispatchNoClient.String())
		o.opts.Logger.DebugContext(ctx, "click ignored, no geoprocessor", "point", pt.String())
		return DispatchNoClient
	}
	if !a.processing.CompareAndSwap(false, true) {
		observability.IncClick(DispatchBusy.String())
		o.opts.Logger.DebugContext(ctx, "click dropped, job in progress", "point", pt.String())
		return DispatchBusy
	}
	if !o.render(a, func() {
		o.view.ShowProgress(true)
		o.view.ShowFocusPoint(pt)
	}) {
		// detached between the load and the flag
		a.processing.Store(false)
		observability.IncClick(DispatchNoClient.String())
		return DispatchNoClient
	}
	observability.SetProcessing(true)
	observability.IncClick(DispatchSubmitted.String())

	req := model.NewWatershedRequest(pt)
	runCtx := logger.CarryTrace(a.ctx, ctx)
	runCtx = logger.WithComponent(runCtx, "orchestrator")

	cell := o.cellFor(pt)
	o.opts.Events.Publish(events.Event{
		Kind: events.KindClick, Lon: pt.X, Lat: pt.Y,
		WKID: pt.SpatialReference.ID(), Cell: cell, Mode: o.opts.Mode,
	})

	o.wg.Add(1)
	go o.run(runCtx, a, pt, cell, req)
	return DispatchSubmitted
}

// render applies fn to the view only while a is the current attachment
func (o *Orchestrator) render(a *attachment, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current.Load() != a {
		return false
	}
	fn()
	return true
}

func (o *Orchestrator) run(ctx context.Context, a *attachment, pt model.Point, cell string, req model.JobRequest) {
	defer o.wg.Done()
	start := time.Now()

	handle, err := a.g.SubmitJob(ctx, req)

	// the flag drops last so a new click cannot show progress before this hides it
	live := o.render(a, func() {
		o.view.ShowProgress(false)
		observability.SetProcessing(false)
		a.processing.Store(false)
	})
	if !live {
		a.processing.Store(false)
	}

	cyc := Cycle{Point: pt, Handle: handle, Outcome: Classify(handle, err), Err: err, Cell: cell}
	ctx = logger.WithJobID(ctx, handle.JobID)

	switch {
	case !live:
		cyc.Outcome = OutcomeDiscarded
		o.opts.Logger.InfoContext(ctx, "watershed job discarded, session detached", "point", pt.String())
	case cyc.Outcome == OutcomeTransportError:
		o.opts.Logger.ErrorContext(ctx, "watershed job failed", "point", pt.String(), "err", err)
	case cyc.Outcome == OutcomeNotSucceeded:
		o.opts.Logger.InfoContext(ctx, "watershed job did not succeed", "status", string(handle.Status))
	default:
		o.opts.Logger.InfoContext(ctx, "watershed job succeeded", "status", string(handle.Status))
		o.fetchResults(ctx, a, &cyc)
		if o.current.Load() != a {
			cyc.Outcome = OutcomeDiscarded
		}
	}

	cyc.Duration = time.Since(start)
	observability.ObserveJob(cyc.Outcome.String(), cyc.Duration.Seconds())
	cells := 0
	if cyc.Outcome != OutcomeDiscarded {
		cells = o.watershedCells()
	}
	o.opts.Events.Publish(events.Event{
		Kind: events.KindResult, JobID: handle.JobID, Status: string(handle.Status),
		Outcome: cyc.Outcome.String(), Lon: pt.X, Lat: pt.Y, WKID: pt.SpatialReference.ID(),
		Cell: cell, Cells: cells, Mode: o.opts.Mode,
	})
	if fn := o.onCycle.Load(); fn != nil {
		(*fn)(cyc)
	}
}

// fetchResults reads both outputs concurrently, each once
func (o *Orchestrator) fetchResults(ctx context.Context, a *attachment, cyc *Cycle) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(err error) {
		mu.Lock()
		cyc.FetchErrs = append(cyc.FetchErrs, err)
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		n, err := o.renderWatershed(ctx, a, cyc.Handle.JobID)
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		cyc.Polygons = n
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		n, retarget, err := o.renderSnapped(ctx, a, cyc.Handle.JobID)
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		cyc.Snapped, cyc.Retarget = n, retarget
		mu.Unlock()
	}()
	wg.Wait()
}

func (o *Orchestrator) renderWatershed(ctx context.Context, a *attachment, jobID string) (int, error) {
	ctx = logger.WithOutput(ctx, model.OutputWatershedArea)
	fs, err := a.g.GetResultData(ctx, jobID, model.OutputWatershedArea)
	observability.IncResultFetch(model.OutputWatershedArea, err)
	if err != nil {
		o.opts.Logger.ErrorContext(ctx, "fetch result failed", "err", err)
		return 0, err
	}

	geoms := fs.Geometries()
	gs := make([]view.Graphic, 0, len(geoms))
	for _, geom := range geoms {
		gs = append(gs, view.Graphic{Geometry: geom, Symbol: view.PolygonSymbol()})
	}
	if len(gs) == 0 {
		return 0, nil
	}
	if !o.render(a, func() { o.view.Watersheds.Add(gs...) }) {
		return 0, errDetached
	}
	return len(gs), nil
}

// renderSnapped replaces the markers with the snapped points and targets the
// view at the last one. A result without a feature array leaves both alone.
func (o *Orchestrator) renderSnapped(ctx context.Context, a *attachment, jobID string) (int, bool, error) {
	ctx = logger.WithOutput(ctx, model.OutputSnappedPoints)
	fs, err := a.g.GetResultData(ctx, jobID, model.OutputSnappedPoints)
	observability.IncResultFetch(model.OutputSnappedPoints, err)
	if err != nil {
		o.opts.Logger.ErrorContext(ctx, "fetch result failed", "err", err)
		return 0, false, err
	}
	if !fs.HasFeatureArray() {
		return 0, false, nil
	}

	geoms := fs.Geometries()
	gs := make([]view.Graphic, 0, len(geoms))
	for _, geom := range geoms {
		gs = append(gs, view.Graphic{Geometry: geom, Symbol: view.PointSymbol()})
	}
	if !o.render(a, func() {
		o.view.FocusPoints.Replace(gs...)
		if len(gs) > 0 {
			o.view.GoTo(gs[len(gs)-1])
		}
	}) {
		return 0, false, errDetached
	}
	return len(gs), len(gs) > 0, nil
}

func (o *Orchestrator) cellFor(pt model.Point) string {
	if o.opts.Mapper == nil || pt.SpatialReference.ID() != model.WKIDWGS84 {
		return ""
	}
	cell, err := o.opts.Mapper.CellForPoint(pt, o.opts.H3Res)
	if err != nil {
		o.opts.Logger.Debug("h3 cell", "err", err)
		return ""
	}
	return cell
}

// watershedCells counts the distinct H3 cells covered by the watershed layer
func (o *Orchestrator) watershedCells() int {
	if o.opts.Mapper == nil {
		return 0
	}
	seen := make(map[string]struct{})
	for _, g := range o.view.Watersheds.Graphics() {
		if !g.Geometry.IsPolygon() || g.Geometry.SpatialReference == nil {
			continue
		}
		cells, err := o.opts.Mapper.CellsForRings(g.Geometry.Rings, *g.Geometry.SpatialReference, o.opts.H3Res)
		if err != nil {
			continue
		}
		for _, c := range cells {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
