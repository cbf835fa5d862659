package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"
	pb "gopkg.in/cheggaaa/pb.v1"

	"tilesched/frame"
	"tilesched/geom"
	"tilesched/source"
	"tilesched/tile"
	"tilesched/tilegrid"
)

// session is one flight of the viewport along the configured path.
type session struct {
	id      string
	log     logrus.FieldLogger
	view    *frame.Viewport
	flight  *flight
	speed   float64 // map units per second
	sources []*source.Source
	queue   *tile.Queue
	policy  *tile.Policy
	bar     *pb.ProgressBar
	loaded  int
}

func run(ctx context.Context) error {
	start := time.Now()
	s, err := newSession()
	if err != nil {
		return err
	}
	if err := s.fly(ctx); err != nil {
		return err
	}
	s.bar.FinishPrint(fmt.Sprintf("Task %s finished ~", s.id))
	s.log.Infof("%.3fs finished, %d tiles loaded", time.Since(start).Seconds(), s.loaded)
	return nil
}

func newSession() (*session, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	slog := log.WithField("session", id)

	line, err := loadPath(conf.Path.Geojson)
	if err != nil {
		return nil, err
	}
	grid, err := tilegrid.NewXYZ(conf.View.MaxZoom)
	if err != nil {
		return nil, err
	}
	res, err := grid.Resolution(conf.View.Zoom)
	if err != nil {
		return nil, fmt.Errorf("view zoom: %w", err)
	}
	slog.Infof("path crosses %d tiles at zoom %d", pathTiles(line, conf.View.Zoom), conf.View.Zoom)

	fl := newFlight(line)
	s := &session{
		id:     id,
		log:    slog,
		flight: fl,
		speed:  conf.View.Speed * res,
		view: frame.NewViewport(frame.View{
			Center:     fl.At(0),
			Resolution: res,
			Rotation:   conf.View.Rotation,
			Size:       geom.Size{Width: conf.View.Width, Height: conf.View.Height},
		}),
		queue: tile.NewQueue(
			tile.WithLogger(slog),
			tile.WithCompletionBuffer(conf.Task.BufSize),
		),
		policy: &tile.Policy{
			Static:             tile.Budget{MaxTotalLoading: conf.Task.StaticTotal, MaxNewLoads: conf.Task.StaticNew},
			Busy:               tile.Budget{MaxTotalLoading: conf.Task.BusyTotal, MaxNewLoads: conf.Task.BusyNew},
			AlwaysReprioritize: conf.Task.AlwaysReprioritize,
		},
	}
	s.queue.OnChange(func(t *tile.Tile) {
		if t.State() == tile.Loaded {
			s.loaded++
			s.bar.Increment()
		}
	})

	world := geom.Extent{
		MinX: -tilegrid.MercatorHalfWorld,
		MinY: -tilegrid.MercatorHalfWorld,
		MaxX: tilegrid.MercatorHalfWorld,
		MaxY: tilegrid.MercatorHalfWorld,
	}
	client := &http.Client{Timeout: time.Duration(conf.Task.Timeout) * time.Second}
	for _, sc := range conf.Sources {
		if sc.Name == "" {
			if sc.Name, err = shortid.Generate(); err != nil {
				return nil, err
			}
		}
		if sc.Format == "" {
			sc.Format = source.PNG
		}
		st, err := openStore(sc, slog)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		if st != nil {
			name := sc.Name
			SafeExitInst.Register(func() {
				if err := st.Close(); err != nil {
					slog.Errorf("close %s store: %v", name, err)
				}
			})
		}
		var limiter *rate.Limiter
		if sc.Rate > 0 {
			limiter = rate.NewLimiter(rate.Limit(sc.Rate), max(sc.Burst, 1))
		}
		src, err := source.New(source.Options{
			Key:       sc.Name,
			URL:       sc.URL,
			Grid:      grid,
			Format:    sc.Format,
			Scheme:    sc.Scheme,
			Extent:    &world,
			Client:    client,
			Limiter:   limiter,
			Store:     st,
			Logger:    slog,
			MaxCached: conf.Task.MaxCached,
			Retries:   sc.Retries,
		})
		if err != nil {
			return nil, err
		}
		s.sources = append(s.sources, src)
	}

	s.bar = pb.New(0).Prefix(fmt.Sprintf("Zoom %d : ", conf.View.Zoom)).Postfix("\n")
	s.bar.SetRefreshRate(time.Second)
	return s, nil
}

// fly animates the view along the path, one frame per tick, and settles
// finished loads between frames. It returns once the path is done and every
// tile of the last frame is settled.
func (s *session) fly(ctx context.Context) error {
	fps := max(conf.View.FPS, 1)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	s.log.Infof("flying %.0f map units at %.0f units/s", s.flight.length, s.speed)
	s.bar.Start()
	s.view.BeginAnimation()
	flying := true

	var (
		fs   *frame.State
		dist float64
		last = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.queue.Completions():
			s.queue.Complete(fs, c)
		case now := <-ticker.C:
			if flying {
				dist += s.speed * now.Sub(last).Seconds()
				s.view.SetCenter(s.flight.At(dist))
				if s.flight.Done(dist) {
					flying = false
					s.view.EndAnimation()
					s.log.Infof("path done, settling the last view")
				}
			}
			last = now

			fs = s.view.Frame(now)
			s.renderFrame(ctx, fs)
			if !flying && s.queue.IsEmpty() && s.queue.TilesLoading() == 0 {
				return nil
			}
		}
	}
}

func (s *session) renderFrame(ctx context.Context, fs *frame.State) {
	if fs == nil {
		return
	}
	covs := make([]source.Coverage, len(s.sources))
	for i, src := range s.sources {
		covs[i] = src.PrepareFrame(fs, s.queue)
	}
	// fs only knows its wanted tiles once every source has prepared it.
	s.queue.Drain(fs)
	for i, src := range s.sources {
		cov := covs[i]
		evicted, aborted := src.Prune(fs, s.queue)
		s.log.WithFields(logrus.Fields{
			"source": src.Key(),
			"z":      cov.Z,
		}).Debugf("ready %d, placeholder %d, missing %d, queued %d, evicted %d, aborted %d",
			cov.Ready, cov.Placeholder, cov.Missing, cov.Queued, evicted, aborted)
	}
	started := s.policy.PostRender(ctx, s.queue, fs)
	if started > 0 {
		s.log.Debugf("%s: started %d loads, %d loading, %d queued", fs.Hints, started, s.queue.TilesLoading(), s.queue.Len())
	}
	s.bar.SetTotal(s.loaded + s.queue.Len() + s.queue.TilesLoading())
}
