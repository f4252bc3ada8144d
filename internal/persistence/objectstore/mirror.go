package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	EnqueuedTotal  uint64
	DroppedTotal   uint64
	UploadedTotal  uint64
	FailedTotal    uint64
	LastUploadUnix int64
}

// Mirror uploads files below dataDir from a bounded queue. Object keys are
// the file's path relative to dataDir, under an optional prefix.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string
	log     logrus.FieldLogger

	jobs chan string
	wg   sync.WaitGroup

	// Retry backoff unit; attempt n waits n*n*backoff.
	backoff time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	lastOK   atomic.Int64
}

func NewMirror(up Uploader, dataDir, prefix string, workers int, logger logrus.FieldLogger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Mirror{
		up:      up,
		dataDir: dataDir,
		prefix:  strings.Trim(filepath.ToSlash(prefix), "/"),
		log:     logger.WithField("component", "mirror"),
		jobs:    make(chan string, 1024),
		backoff: 200 * time.Millisecond,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

// Enqueue never blocks; a full queue drops the file.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
	default:
		m.dropped.Add(1)
		m.log.WithField("path", localPath).Warn("mirror queue full, dropping")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(m.jobs),
		QueueCapacity:  cap(m.jobs),
		EnqueuedTotal:  m.enqueued.Load(),
		DroppedTotal:   m.dropped.Load(),
		UploadedTotal:  m.uploaded.Load(),
		FailedTotal:    m.failed.Load(),
		LastUploadUnix: m.lastOK.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.log.WithError(err).WithField("path", localPath).Warn("mirror skip")
		return
	}
	const attempts = 4
	for n := 1; n <= attempts; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.lastOK.Store(time.Now().Unix())
			m.log.WithField("key", key).Debug("mirrored")
			return
		}
		if n < attempts {
			time.Sleep(time.Duration(n*n) * m.backoff)
		}
	}
	m.failed.Add(1)
	m.log.WithError(err).WithField("key", key).Error("mirror upload failed")
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.prefix != "" {
		return path.Join(m.prefix, rel), nil
	}
	return rel, nil
}
