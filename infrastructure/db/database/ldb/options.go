package ldb

import "github.com/syndtr/goleveldb/leveldb/opt"

// defaultCacheSizeMiB is used when the caller passes a non-positive
// cache size.
const defaultCacheSizeMiB = 256

// Options is a function that returns a leveldb opt.Options struct for
// opening a database with the given block cache size. It's defined as
// a variable for the sake of testing.
var Options = func(cacheSizeMiB int) *opt.Options {
	if cacheSizeMiB <= 0 {
		cacheSizeMiB = defaultCacheSizeMiB
	}
	return &opt.Options{
		Compression:            opt.NoCompression,
		BlockCacheCapacity:     cacheSizeMiB * opt.MiB,
		WriteBuffer:            (cacheSizeMiB / 2) * opt.MiB,
		DisableSeeksCompaction: true,
	}
}
