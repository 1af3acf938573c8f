package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-books/config"
	"github.com/aluiziolira/go-scrape-books/models"
	"github.com/aluiziolira/go-scrape-books/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending batches are not written in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for the workers.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.Book) error
	Close() error
	Validate() error
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Written  int64
	Rejected map[string]int
}

// Pipeline validates, de-duplicates and batches records into an OutputWriter.
// With a single worker records reach the writer in submission order.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	bookCh    chan *models.Book
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	stats *counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline whose batch size comes from cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		bookCh:    make(chan *models.Book, batchSize*4),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		stats:     newCounters(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues books for downstream processing. Nil entries are skipped.
func (p *Pipeline) Process(books ...*models.Book) error {
	if len(books) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, book := range books {
		if book == nil {
			continue
		}
		if err := p.enqueue(book); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting records and waits for pending batches to be written.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.bookCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.signalShutdown()
		return fmt.Errorf("after %s: %w", drainTimeout, ErrPipelineCloseTimeout)
	}

	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the internal counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Book, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.stats.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for book := range p.bookCh {
		prepared := p.prepare(book)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(book *models.Book) *models.Book {
	if err := parser.ValidateBook(book); err != nil {
		p.stats.reject("invalid_record")
		return nil
	}

	// Records are keyed by page address; distinct pages sharing a UPC are
	// both kept.
	key := book.URL
	if key == "" {
		key = "upc:" + book.UPC
	}
	p.seenMu.Lock()
	if _, ok := p.seen[key]; ok {
		p.seenMu.Unlock()
		p.stats.reject("duplicate_record")
		return nil
	}
	p.seen[key] = struct{}{}
	p.seenMu.Unlock()

	book.Title = parser.NormalizeText(book.Title)
	book.Category = parser.NormalizeText(book.Category)
	book.Availability = parser.NormalizeText(book.Availability)
	return book
}

func (p *Pipeline) enqueue(book *models.Book) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.bookCh <- book:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.bookCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type counters struct {
	mu       sync.Mutex
	written  int64
	rejected map[string]int
}

func newCounters() *counters {
	return &counters{
		rejected: make(map[string]int),
	}
}

func (c *counters) addWritten(n int) {
	c.mu.Lock()
	c.written += int64(n)
	c.mu.Unlock()
}

func (c *counters) reject(kind string) {
	c.mu.Lock()
	c.rejected[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rejected := make(map[string]int, len(c.rejected))
	for k, v := range c.rejected {
		rejected[k] = v
	}
	return Stats{Written: c.written, Rejected: rejected}
}
