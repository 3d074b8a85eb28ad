package ext4fs

import (
	"github.com/BurntSushi/toml"
)

// FileConfig mirrors the tunables in Option, for callers that prefer
// to keep cache-size/replay choices in a checked-in config file rather
// than Go call sites.
type FileConfig struct {
	CacheBlocks       int  `toml:"cache_blocks"`
	SkipJournalReplay bool `toml:"skip_journal_replay"`
}

// OptionsFromTOML decodes a TOML document into a FileConfig and
// returns the equivalent Option list.
func OptionsFromTOML(data []byte) ([]Option, error) {
	var fc FileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return nil, wrapErr(KindInvalidConfig, "invalid config", err)
	}
	return fc.Options(), nil
}

// Options converts a decoded FileConfig into the Option list Load
// expects.
func (fc FileConfig) Options() []Option {
	var opts []Option
	if fc.CacheBlocks > 0 {
		opts = append(opts, WithCacheSize(fc.CacheBlocks))
	}
	if fc.SkipJournalReplay {
		opts = append(opts, WithoutJournalReplay())
	}
	return opts
}
