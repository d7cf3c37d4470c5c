// Package media downloads song audio and cover images into the local cache.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/franz/suno-catalog/internal/locality"
	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

const (
	// DefaultWorkers bounds concurrent downloads
	DefaultWorkers = 4

	// UserAgent identifies media requests
	UserAgent = "songcat/1.0"

	// sniffLen is how much of a payload is inspected for its type
	sniffLen = 512
)

// Fetcher populates the media cache laid out by a locality.Prober.
// It never writes to the database; the locality flags are refreshed by
// the next migration or an explicit refresh.
type Fetcher struct {
	prober  *locality.Prober
	fs      afero.Fs
	client  *http.Client
	logger  *report.EventLogger
	workers int
	retry   *util.RetryConfig
	limiter *rate.Limiter
}

// Config holds fetcher configuration
type Config struct {
	Prober  *locality.Prober
	Client  *http.Client // defaults to a client with a 2 minute timeout
	Logger  *report.EventLogger
	Workers int
	Retry   *util.RetryConfig
	Rate    float64 // requests per second across workers; 0 for unlimited
}

// New creates a new Fetcher
func New(cfg *Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	retry := cfg.Retry
	if retry == nil {
		retry = util.DefaultRetryConfig()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	return &Fetcher{
		limiter: limiter,
		prober:  cfg.Prober,
		fs:      cfg.Prober.Fs(),
		client:  client,
		logger:  cfg.Logger,
		workers: workers,
		retry:   retry,
	}
}

// Asset is one media file of one song
type Asset struct {
	SongID string
	Kind   locality.Kind
	URL    string
	Path   string
}

// Result summarizes a fetch run
type Result struct {
	Downloaded int
	Skipped    int // already cached or no URL
	Failed     int
	Bytes      int64
	Errors     []error
	Elapsed    time.Duration
}

// Assets lists the audio and image files of songs in order
func (f *Fetcher) Assets(songs []*store.Song) []Asset {
	assets := make([]Asset, 0, 2*len(songs))
	for _, s := range songs {
		assets = append(assets,
			Asset{SongID: s.ID, Kind: locality.KindAudio, URL: s.AudioURL, Path: f.prober.Path(s.ID, locality.KindAudio)},
			Asset{SongID: s.ID, Kind: locality.KindImage, URL: s.ImageURL, Path: f.prober.Path(s.ID, locality.KindImage)},
		)
	}
	return assets
}

// Fetch downloads every missing asset of songs. Per-file failures are
// collected in the result; only a cancelled context or an unusable media
// root fails the run.
func (f *Fetcher) Fetch(ctx context.Context, songs []*store.Song) (*Result, error) {
	start := time.Now()

	if err := f.fs.MkdirAll(f.prober.Root(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}

	assets := f.Assets(songs)
	result := &Result{}

	bar := util.NewProgressBar(int64(len(assets)), "Fetching", "files")

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(f.workers)

	for _, a := range assets {
		if ctx.Err() != nil {
			break
		}

		if reason := f.skipReason(a); reason != "" {
			f.logger.LogSkip(report.EventFetch, a.SongID, a.Path, reason)
			util.DebugLog("Skip %s %s: %s", a.SongID, a.Kind, reason)
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			if bar != nil {
				bar.Add(1)
			}
			continue
		}

		a := a // per-iteration copy; go directive predates 1.22 loopvar semantics
		p.Go(func() {
			assetStart := time.Now()
			n, err := f.download(ctx, a)
			f.logger.LogFetch(a.SongID, a.URL, a.Path, n, time.Since(assetStart), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				util.WarnLog("Failed to fetch %s %s: %v", a.SongID, a.Kind, err)
				result.Failed++
				result.Errors = append(result.Errors, fmt.Errorf("%s %s: %w", a.SongID, a.Kind, err))
			} else {
				util.InfoLog("Downloaded %s (%s)", filepath.Base(a.Path), humanize.Bytes(uint64(n)))
				result.Downloaded++
				result.Bytes += n
			}
			if bar != nil {
				bar.Add(1)
			}
		})
	}

	p.Wait()
	if bar != nil {
		bar.Finish()
	}
	result.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// skipReason returns why an asset needs no download, or ""
func (f *Fetcher) skipReason(a Asset) string {
	switch {
	case a.Path == "":
		return "id cannot name a cache file"
	case a.URL == "":
		return "no url"
	case f.prober.Exists(a.SongID, a.Kind):
		return "already cached"
	}
	return ""
}

func (f *Fetcher) download(ctx context.Context, a Asset) (int64, error) {
	return util.RetryWithBackoff(ctx, f.retry, func() (int64, error) {
		return f.get(ctx, a)
	}, "fetch "+a.URL)
}

// get downloads one asset into a temp file next to its destination and
// renames it into place once the payload checks out
func (f *Fetcher) get(ctx context.Context, a Asset) (int64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &util.StatusError{URL: a.URL, Code: resp.StatusCode}
	}

	tmp, err := afero.TempFile(f.fs, filepath.Dir(a.Path), "."+filepath.Base(a.Path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			f.fs.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read body: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	head := make([]byte, sniffLen)
	k, err := io.ReadFull(tmp, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if err := Verify(head[:k], a.Kind); err != nil {
		return 0, err
	}

	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := f.fs.Rename(tmpName, a.Path); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", a.Path, err)
	}
	committed = true

	return n, nil
}

// Verify checks the leading bytes of a payload against the media kind.
// Audio must carry a recognizable tag header or an MPEG frame sync;
// images must sniff as an image type.
func Verify(head []byte, kind locality.Kind) error {
	if len(head) == 0 {
		return fmt.Errorf("%w: empty body", util.ErrInvalidMedia)
	}

	switch kind {
	case locality.KindAudio:
		if _, fileType, err := tag.Identify(bytes.NewReader(head)); err == nil && fileType != tag.UnknownFileType {
			return nil
		}
		if len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0 {
			return nil
		}
		return fmt.Errorf("%w: not audio (%s)", util.ErrInvalidMedia, http.DetectContentType(head))

	case locality.KindImage:
		if ct := http.DetectContentType(head); !strings.HasPrefix(ct, "image/") {
			return fmt.Errorf("%w: not an image (%s)", util.ErrInvalidMedia, ct)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown kind %q", util.ErrInvalidMedia, kind)
}
