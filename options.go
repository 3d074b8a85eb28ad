package ext4fs

import (
	"github.com/sirupsen/logrus"
)

// config holds every tunable Load accepts. Unexported: callers build it
// only through Option values.
type config struct {
	cacheBlocks int
	logger      *logrus.Logger
	skipJournal bool
}

// Option configures a Load call.
type Option func(*config)

// WithCacheSize overrides the default block-cache capacity
// (DefaultCacheBlocks). A size of 0 or less is ignored, leaving the
// current setting in place, instead of disabling caching entirely,
// since every read already goes through the cache's bookkeeping.
func WithCacheSize(blocks int) Option {
	return func(c *config) {
		if blocks > 0 {
			c.cacheBlocks = blocks
		}
	}
}

// WithLogger directs diagnostic logging (feature negotiation choices,
// journal replay progress) to logger instead of the default, which
// discards everything.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithoutJournalReplay skips journal replay entirely, exposing the
// filesystem exactly as it sits on the block device. Useful when the
// caller already knows the image was cleanly unmounted, or wants to
// inspect pre-replay state for debugging.
func WithoutJournalReplay() Option {
	return func(c *config) { c.skipJournal = true }
}

func defaultConfig() *config {
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return &config{
		cacheBlocks: DefaultCacheBlocks,
		logger:      logger,
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
