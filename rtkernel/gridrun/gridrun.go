// Package gridrun shoots every cell of a grid view across a pool of workers.
// Rows are split into contiguous bands.  A band in flight holds one worker's
// resource pool exclusively; the model is shared read-only.
package gridrun

import (
	"context"
	"runtime"
	"sync"
	"time"

	"csgtrace/rtkernel/booleval"
	"csgtrace/rtkernel/gridview"
	"csgtrace/rtkernel/model"
	"csgtrace/rtkernel/ray"
	"csgtrace/rtkernel/raytrace"
	"csgtrace/rtkernel/resource"
	"csgtrace/rtkernel/shoot"
	"csgtrace/rtkernel/telemetry"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

var ErrNotPrepped = xerrors.New("model is not prepared")

// CellFunc is called, from the worker that shot it, for every cell that hit
// something.  It may be called concurrently and must not retain parts.
type CellFunc func(col, row int, r *ray.Ray, parts raytrace.PartitionList)

// ProgressFunc is called after each row with the number of rows done.
type ProgressFunc func(done, total int)

type Options struct {
	Workers  int
	OneHit   bool
	Policy   booleval.OverlapPolicy
	Progress ProgressFunc
}

type Opt func(*Options)

func WithWorkers(n int) Opt {
	return func(o *Options) {
		o.Workers = n
	}
}

func WithOneHit(oneHit bool) Opt {
	return func(o *Options) {
		o.OneHit = oneHit
	}
}

func WithPolicy(p booleval.OverlapPolicy) Opt {
	return func(o *Options) {
		o.Policy = p
	}
}

func WithProgress(f ProgressFunc) Opt {
	return func(o *Options) {
		o.Progress = f
	}
}

// Run shoots the whole grid.  onHit and onOverlap may be nil; both are called
// from worker goroutines.  Cancelling ctx stops the workers at the next row.
// At most Workers bands of rows are shot at once.
func Run(ctx context.Context, m *model.Model, v *gridview.View, onHit CellFunc, onOverlap booleval.OverlapHandler, opts ...Opt) (*telemetry.Run, error) {
	tracer := otel.Tracer("csgtrace/rtkernel/gridrun")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "gridrun.Run")
	defer span.End()

	o := Options{Workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Workers > v.Rows {
		o.Workers = v.Rows
	}
	if !m.Prepped() {
		return nil, ErrNotPrepped
	}

	start := time.Now()
	shared := resource.NewShared()
	counters := make([]telemetry.Counters, o.Workers)

	// progressMutex guards rowsDone.
	progressMutex := sync.Mutex{}
	rowsDone := 0
	rowDone := func() {
		if o.Progress == nil {
			return
		}
		progressMutex.Lock()
		defer progressMutex.Unlock()
		rowsDone++
		o.Progress(rowsDone, v.Rows)
	}

	// Bands outnumber workers so a worker that finishes early picks up
	// another band.  The semaphore admits one band per worker and each
	// admitted band borrows a free worker's pool.
	bands := o.Workers * bandsPerWorker
	if bands > v.Rows {
		bands = v.Rows
	}
	pools := make(chan *resource.Pool, o.Workers)
	for i := 0; i < o.Workers; i++ {
		pools <- resource.NewPool(i, shared)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.Workers))
	for b := 0; b < bands; b++ {
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}

		w := &worker{
			view:    v,
			rowSrc:  b * v.Rows / bands,
			rowLim:  (b + 1) * v.Rows / bands,
			onHit:   onHit,
			rowDone: rowDone,
		}
		w.app = shoot.NewApplication(m, w.hit, nil,
			shoot.WithOneHit(o.OneHit),
			shoot.WithPolicy(o.Policy),
			shoot.WithOverlapHandler(onOverlap))

		eg.Go(func() error {
			defer sem.Release(1)
			w.pool = <-pools
			defer func() {
				pools <- w.pool
			}()
			return w.render(egCtx)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, xerrors.Errorf("while waiting for completion of errgroup: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("grid run cancelled: %w", err)
	}

	close(pools)
	for pool := range pools {
		pool.Close()
		counters[pool.Worker] = pool.Counters
	}

	run := telemetry.NewRun(counters, time.Since(start))
	glog.Infof("Grid run of %dx%d cells on %d workers: %v", v.Cols, v.Rows, o.Workers, &run.Total)
	return run, nil
}

// bandsPerWorker is how many row bands each worker gets on average.
const bandsPerWorker = 4

type worker struct {
	view *gridview.View
	pool *resource.Pool
	app  *shoot.Application

	rowSrc, rowLim int

	// The cell being shot.
	col, row int
	r        ray.Ray

	onHit   CellFunc
	rowDone func()
}

func (w *worker) hit(parts raytrace.PartitionList, m *model.Model) int {
	if w.onHit != nil {
		w.onHit(w.col, w.row, &w.r, parts)
	}
	return 1
}

func (w *worker) render(ctx context.Context) error {
	for w.row = w.rowSrc; w.row < w.rowLim; w.row++ {
		if err := ctx.Err(); err != nil {
			return xerrors.Errorf("worker %d stopped at row %d: %w", w.pool.Worker, w.row, err)
		}
		for w.col = 0; w.col < w.view.Cols; w.col++ {
			w.r = w.view.Ray(w.col, w.row)
			w.app.Shoot(w.r.Point, w.r.Slope, w.pool)
		}
		w.rowDone()
	}
	return nil
}
